// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds private key material and passphrases in memory
// that the Go runtime never sees.
//
// [Buffer] is backed by an anonymous mmap region that is locked into
// RAM (mlock), excluded from core dumps (MADV_DONTDUMP), and zeroed
// before it is unmapped. The garbage collector cannot move or copy
// the bytes, so after [Buffer.Close] no copy of the secret remains in
// the process.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer
//   - [NewFromBytes] moves bytes into protected memory and zeroes the source
//   - [ReadFromPath] reads a passphrase file (or stdin) into a buffer
//
// [Zero] overwrites a heap slice in place. Callers that receive key
// bytes across an API boundary (HTTP bodies, decoded envelopes) zero
// their copies with it on every return path.
//
// Depends only on golang.org/x/sys/unix.
package secret
