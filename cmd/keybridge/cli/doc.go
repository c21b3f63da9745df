// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the keybridge CLI.
//
// A [Command] tree dispatches on the first positional argument, parses
// flags with pflag, and prints structured help. Flag sets are usually
// built from tagged parameter structs with [FlagsFromParams]. Unknown
// commands and flags get a "did you mean" suggestion by edit distance.
//
// Commands that want a non-zero exit without an error message return
// an [ExitError]. Commands that support machine-readable output embed
// [JSONOutput].
package cli
