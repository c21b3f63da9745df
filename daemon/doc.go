// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon implements the keybridge daemon's loopback HTTP API.
//
// [Server] is a thin adapter over a custodian (lib/custody): each
// handler decodes a request, applies the per-origin rate limit to
// consent-gated operations, calls the custodian, and translates the
// result. Errors are classified through lib/schema so every response
// carries one taxonomy code and its matching status.
//
// Routes:
//
//	GET    /status         reachability, has_keys, version, uptime
//	GET    /keys/public    public key, DID, fingerprint
//	POST   /keys/generate  create the daemon keypair (consent-gated)
//	POST   /sign           sign content (consent-gated)
//	POST   /import-key     take custody of a client key (consent-gated)
//	DELETE /keys           remove the keypair (consent-gated)
//	GET    /metrics        Prometheus exposition
//
// CORS is permissive (Access-Control-Allow-Origin: *) because the
// browser extension calls from its own origin; the listener is
// loopback-only and every key operation requires human approval.
//
// [Metrics] holds the Prometheus collectors. [Metrics.AuditSink] wraps
// the consent audit sink so resolved consent requests are counted by
// outcome.
package daemon
