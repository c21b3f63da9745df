// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Keybridge is the command-line client surface for keybridge. It signs
// with a local passphrase-protected key until the identity is migrated
// into keybridge-daemon, and through the daemon afterwards.
//
// Run "keybridge --help" for the command list.
package main
