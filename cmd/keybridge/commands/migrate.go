// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keybridge/client"
	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
	"github.com/bureau-foundation/keybridge/lib/schema"
)

type migrateParams struct {
	globalParams
	cli.JSONOutput
	NewIdentity bool `flag:"new-identity" desc:"have the daemon create a fresh identity and discard the local one"`
	Yes         bool `flag:"yes,y" desc:"confirm --new-identity"`
}

type reconcileParams struct {
	globalParams
	cli.JSONOutput
}

type migrateOutput struct {
	DID            string `json:"did"`
	AlreadyPresent bool   `json:"already_present,omitempty"`
	NewIdentity    bool   `json:"new_identity,omitempty"`
}

type reconcileOutput struct {
	Action    client.ReconcileAction `json:"action"`
	Mode      client.Mode            `json:"mode"`
	DID       string                 `json:"did,omitempty"`
	LocalDID  string                 `json:"local_did,omitempty"`
	DaemonDID string                 `json:"daemon_did,omitempty"`
}

func migrateCommand(streams IO) *cli.Command {
	var params migrateParams
	return &cli.Command{
		Name:    "migrate",
		Summary: "Move the local identity into the daemon",
		Description: "Import the local key into keybridge-daemon, confirm the daemon holds the same\n" +
			"DID, then wipe the local copy and switch to bridge mode. The local key is kept\n" +
			"if anything fails before the daemon confirms.\n\n" +
			"Non-extractable keys cannot be moved. --new-identity has the daemon generate a\n" +
			"fresh identity instead; signatures from the old identity will not match it.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("migrate", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			if params.NewIdentity && !params.Yes {
				return errors.New("--new-identity discards the local identity; re-run with --yes to confirm")
			}
			env, err := params.load(streams)
			if err != nil {
				return err
			}
			defer env.Close()
			manager, err := env.manager()
			if err != nil {
				return err
			}

			var result client.MigrationResult
			if params.NewIdentity {
				result, err = manager.MigrateNewIdentity(ctx)
			} else {
				if manager.Mode() == client.ModeLocal {
					if err := env.readPassphrase(false); err != nil {
						return err
					}
				}
				result, err = manager.Migrate(ctx)
			}
			alreadyMigrated := errors.Is(err, schema.ErrAlreadyMigrated)
			if alreadyMigrated {
				err = nil
			}
			if errors.Is(err, client.ErrNonExtractable) {
				return fmt.Errorf("%w; use --new-identity --yes to replace it with a daemon identity", err)
			}
			if err != nil {
				return err
			}

			output := migrateOutput{DID: result.DID, AlreadyPresent: result.AlreadyPresent, NewIdentity: result.NewIdentity}
			if done, err := params.EmitJSON(streams.Out, output); done {
				return err
			}
			switch {
			case alreadyMigrated:
				fmt.Fprintf(streams.Out, "already migrated; bridge mode with %s\n", output.DID)
			case output.NewIdentity:
				fmt.Fprintf(streams.Out, "bridge mode with new daemon identity %s\n", output.DID)
			case output.AlreadyPresent:
				fmt.Fprintf(streams.Out, "daemon already held %s; bridge mode\n", output.DID)
			default:
				fmt.Fprintf(streams.Out, "migrated %s; bridge mode\n", output.DID)
			}
			return nil
		},
	}
}

func reconcileCommand(streams IO) *cli.Command {
	var params reconcileParams
	return &cli.Command{
		Name:    "reconcile",
		Summary: "Settle state left by an interrupted migration",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("reconcile", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			env, err := params.load(streams)
			if err != nil {
				return err
			}
			defer env.Close()
			manager, err := env.manager()
			if err != nil {
				return err
			}

			result, err := manager.Reconcile(ctx)
			if err != nil {
				return err
			}
			output := reconcileOutput{
				Action:    result.Action,
				Mode:      result.Mode,
				DID:       result.DID,
				LocalDID:  result.LocalDID,
				DaemonDID: result.DaemonDID,
			}
			if done, err := params.EmitJSON(streams.Out, output); done {
				return err
			}
			fmt.Fprintf(streams.Out, "%s (mode %s)\n", output.Action, output.Mode)
			if output.Action == client.ReconcileConflict {
				fmt.Fprintf(streams.Out, "local identity:  %s\ndaemon identity: %s\n", output.LocalDID, output.DaemonDID)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
