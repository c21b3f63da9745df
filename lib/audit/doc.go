// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit keeps the consent audit trail: one JSON line per
// resolved consent request, holding the content hash, origin,
// operation, outcome, and timestamp. The content itself is never
// written.
//
// Each record carries the BLAKE3 hash of the previous record's line,
// so deleting or editing a line breaks the chain and [Verify] reports
// where. When the active file grows past its size limit it is
// compressed with zstd into a timestamped segment next to it, and the
// chain continues into the fresh file.
package audit
