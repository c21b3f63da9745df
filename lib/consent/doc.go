// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package consent implements the human-approval gate that every
// signing, key-import, key-generation, and key-deletion request passes
// through before the custodian touches the private key.
//
// A [Gate] serializes requests: exactly one is shown to the human at a
// time, and the rest wait in arrival order. Each shown request resolves
// to exactly one [Outcome]: approved, denied, timed out (its deadline
// expired), or cancelled (the caller gave up). Only approval lets the
// operation proceed; every other outcome surfaces as
// schema.ErrConsentDenied.
//
// The decision itself comes from a [Prompter]. [Terminal] draws a box on
// a TTY and reads y/N; [DenyAll] serves headless daemons; [Scripted]
// drives tests.
//
// Every resolution is written to an audit sink as metadata only: the
// content hash, origin, operation, outcome, and timestamp. Content never
// leaves the request.
package consent
