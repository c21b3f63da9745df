// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is keybridge's CBOR configuration.
//
// The daemon API speaks JSON because browser extensions and SDKs call
// it. Everything keybridge writes to its own disk is CBOR: the client
// mode state file, the migration journal, the passphrase-sealed local
// key envelope, and the sealed credential store records. Those files
// are read back only by keybridge, and deterministic CBOR makes two
// writes of the same logical state byte-identical, which the tests
// rely on when asserting that a denied operation left stores untouched.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2). The
// decoder ignores unknown fields so newer files can be read by older
// binaries.
//
//	data, err := codec.Marshal(state)
//	err = codec.Unmarshal(data, &state)
//
// Types that are only stored carry `cbor` struct tags. Types shared
// with the HTTP API carry `json` tags, which fxamacker/cbor honors as a
// fallback.
package codec
