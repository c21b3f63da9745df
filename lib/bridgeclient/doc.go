// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridgeclient is the HTTP client for the keybridge daemon API.
//
// Every method returns an error wrapping exactly one lib/schema
// taxonomy sentinel. Transport failures, and responses that are not
// recognizable daemon responses, wrap [schema.ErrConnection]. Daemon
// error responses are translated from their wire code (falling back to
// the status code) into the matching sentinel, carried in an
// [*APIError]. The translation is 1:1: a denial is never reported as a
// connection failure, nor the reverse.
//
// [Client.Status] is the cheap reachability probe; callers bound it
// with their own short context. Consent-gated calls (Generate, Sign,
// ImportKey, DeleteKeys) are additionally bounded by the client's
// RequestTimeout, which must exceed the daemon's consent deadline.
package bridgeclient
