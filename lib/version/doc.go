// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which keybridge build is running.
//
// Release builds stamp the package variables:
//
//	go build -ldflags "-X github.com/bureau-foundation/keybridge/lib/version.Version=0.2.0 \
//	    -X github.com/bureau-foundation/keybridge/lib/version.GitCommit=$(git rev-parse HEAD)"
//
// Unstamped builds from a checkout fall back to the revision the go
// command records in the binary, so a locally built daemon still says
// which commit it came from. The daemon puts [Short] in its status
// response; clients send [UserAgent].
package version
