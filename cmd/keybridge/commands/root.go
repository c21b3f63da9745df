// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the keybridge CLI command tree.
package commands

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
	"github.com/bureau-foundation/keybridge/lib/version"
)

// Root returns the keybridge command tree writing to streams.
func Root(streams IO) *cli.Command {
	return &cli.Command{
		Name: "keybridge",
		Description: "Keybridge manages this surface's signing identity. Keys start in a local\n" +
			"passphrase-protected store and can be migrated into keybridge-daemon, which\n" +
			"then signs on this surface's behalf after asking for consent.",
		Output: streams.Err,
		Subcommands: []*cli.Command{
			statusCommand(streams),
			signCommand(streams),
			localCommand(streams),
			migrateCommand(streams),
			reconcileCommand(streams),
			daemonCommand(streams),
			auditCommand(streams),
			versionCommand(streams),
		},
	}
}

func versionCommand(streams IO) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(context.Context, []string) error {
			fmt.Fprintf(streams.Out, "keybridge %s\n", version.Info())
			return nil
		},
	}
}

// noArgs rejects positional arguments for commands that take none.
func noArgs(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return nil
}
