// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog records risky client transitions, chiefly the
// local-to-daemon key migration, in a small journal file. A client
// writes a [State] before the transition starts; on startup, any
// process can read it to report that a transition was interrupted.
//
// The journal is diagnostic only. Recovery never trusts it: the
// reconciliation logic re-derives what happened from durable facts
// (local key storage contents, the daemon's status and DID). A stale
// or missing journal therefore never causes key material to be wiped
// or kept incorrectly.
//
// The journal is written atomically through lib/statefile as CBOR.
// [Check] ignores journals older than a configurable maximum age so a
// file left behind by an unrelated crash long ago does not produce a
// misleading report.
package watchdog
