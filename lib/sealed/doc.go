// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for the operations keybridge
// needs to keep key material at rest on hosts without a usable OS
// keyring: generate an x25519 identity, persist it to a key file,
// encrypt a payload to one or more recipients, and decrypt it back into
// protected memory.
//
// Private identities and decrypted plaintext are returned as
// [secret.Buffer] values (mmap-backed, locked against swap, excluded
// from core dumps, zeroed on close).
//
// Used by the sealed backend of lib/credstore.
package sealed
