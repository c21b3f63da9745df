// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Keybridge-daemon holds one Ed25519 signing identity and serves the
// keybridge API on a loopback address.
//
// The key lives in the configured credential store (OS keyring, an
// age-sealed directory, or memory for development). Signing, import,
// and deletion pass through the consent gate, which prompts on the
// controlling terminal. Without a terminal, prompted requests are
// denied. Every consent decision is appended to a hash-chained audit
// log.
//
// The daemon runs until SIGINT or SIGTERM, then drains in-flight
// requests. Pending consent prompts are withdrawn on shutdown.
package main
