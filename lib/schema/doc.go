// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the keybridge daemon protocol: the JSON
// request and response bodies of each endpoint, the error taxonomy
// shared by the daemon and every client, and the mapping between
// taxonomy errors, HTTP status codes, and wire codes.
//
// The daemon (writer) and lib/bridgeclient (reader) both depend on this
// package so they agree on field names and status semantics. Adding,
// removing, or renaming fields here changes the wire protocol.
//
// This package depends on no other keybridge packages.
package schema
