// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the listener scaffolding for the keybridge
// daemon.
//
// [HTTPServer] binds a loopback-only TCP listener described by a
// multiaddr, serves a caller-provided http.Handler, and drains in-flight
// requests on context cancellation. Non-loopback addresses are refused
// at construction with [ErrNotLoopback]: the daemon API has no
// authentication beyond "same host", so binding anywhere else would
// publish the signing key.
//
// The package provides building blocks, not a runtime. The daemon
// composes them in its own main function.
package service
