// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for keybridge packages.
//
// [RequireReceive] and [RequireClosed] bound channel waits with a real
// timer so a stuck goroutine fails the test instead of hanging it.
// [RequireResult] does the same for an error result and checks it with
// errors.Is, which is how consent and signing tests assert approve,
// deny and timeout outcomes. These are the only wall-clock waits in
// the suite; deadlines themselves run on lib/clock's fake clock.
//
// [Logger] returns a structured logger that writes through t.Log, so
// log output appears only for failing tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no keybridge-internal dependencies.
package testutil
