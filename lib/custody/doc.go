// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package custody holds the daemon's signing identity. A [Custodian]
// loads the private key seed from a credential store at startup, keeps
// it behind a non-extractable key handle, and exposes the only
// operations that touch it: generate, sign, import, and delete. Every
// one of those passes through a consent gate first.
//
// Once custody is established the private key never leaves the
// custodian: there is no export operation. Import is one-way.
//
// The custodian is a single writer. Mutating operations and signing
// hold one lock for the duration of their key access; consent prompting
// happens outside the lock (the gate serializes prompts itself), so a
// pending prompt never blocks status queries.
package custody
