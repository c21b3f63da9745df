// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client manages where one client surface's signing identity
// lives.
//
// A surface starts in [ModeNone]. Creating or restoring a key puts it
// in [ModeLocal], with the seed sealed in a passphrase-protected
// envelope under the state directory. Migrating hands the identity to
// the keybridge daemon and puts the surface in [ModeBridge]; from then
// on every signature comes from the daemon and the surface refuses to
// sign if the daemon is unreachable or reports a different identity.
// A surface in ModeNone that finds a daemon already holding a key
// adopts it.
//
// Migration imports the key, confirms the daemon holds the same DID,
// wipes the local envelope, and only then records ModeBridge. A
// migration journal in the state directory records the attempt for
// diagnostics. [Manager.Reconcile] settles whatever an interrupted
// transition leaves behind without ever swapping one identity for a
// different one.
package client
