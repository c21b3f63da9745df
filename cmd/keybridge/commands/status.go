// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keybridge/client"
	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
)

type statusParams struct {
	globalParams
	cli.JSONOutput
}

type statusOutput struct {
	Mode              client.Mode `json:"mode"`
	DID               string      `json:"did,omitempty"`
	DaemonURL         string      `json:"daemon_url"`
	Reachable         bool        `json:"reachable"`
	Degraded          bool        `json:"degraded"`
	DaemonHasKeys     bool        `json:"daemon_has_keys"`
	DaemonFingerprint string      `json:"daemon_fingerprint,omitempty"`
	ProbeError        string      `json:"probe_error,omitempty"`
	CheckedAt         time.Time   `json:"checked_at"`
	LocalExtractable  bool        `json:"local_extractable,omitempty"`
	MigrationJournal  bool        `json:"migration_journal,omitempty"`
}

// degradedExitCode is returned by status when bridge mode cannot sign.
const degradedExitCode = 2

func statusCommand(streams IO) *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show signing mode and daemon reachability",
		Description: "Show where this surface's identity lives and whether the daemon answers.\n" +
			"Exits 2 when in bridge mode with the daemon unreachable.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
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
			if err := manager.Probe(ctx); err != nil {
				env.logger.Info("daemon probe failed", "error", err)
			}

			report := manager.Status()
			output := statusOutput{
				Mode:              report.Mode,
				DID:               report.DID,
				DaemonURL:         env.config.Client.DaemonURL,
				Reachable:         report.Reachable,
				Degraded:          report.Degraded,
				DaemonHasKeys:     report.DaemonHasKeys,
				DaemonFingerprint: report.DaemonFingerprint,
				CheckedAt:         report.LastProbe,
				LocalExtractable:  report.LocalKeyExtractable,
				MigrationJournal:  report.MigrationJournalSeen,
			}
			if report.LastProbeError != nil {
				output.ProbeError = report.LastProbeError.Error()
			}

			if done, err := params.EmitJSON(streams.Out, output); done {
				if err == nil && output.Degraded {
					return &cli.ExitError{Code: degradedExitCode}
				}
				return err
			}

			fmt.Fprintf(streams.Out, "mode:      %s\n", output.Mode)
			if output.DID != "" {
				fmt.Fprintf(streams.Out, "identity:  %s\n", output.DID)
			}
			if output.Reachable {
				fmt.Fprintf(streams.Out, "daemon:    reachable at %s\n", output.DaemonURL)
			} else {
				fmt.Fprintf(streams.Out, "daemon:    unreachable at %s (%s)\n", output.DaemonURL, output.ProbeError)
			}
			if output.DaemonHasKeys {
				fmt.Fprintf(streams.Out, "daemon key: %s\n", output.DaemonFingerprint)
			}
			if output.Mode == client.ModeLocal && !output.LocalExtractable {
				fmt.Fprintln(streams.Out, "local key is not extractable; use 'keybridge migrate --new-identity' to move to the daemon")
			}
			if output.MigrationJournal {
				fmt.Fprintln(streams.Out, "an interrupted migration was recorded; run 'keybridge reconcile'")
			}
			if output.Degraded {
				fmt.Fprintln(streams.Out, "DEGRADED: bridge mode without a reachable daemon; signing will fail")
				return &cli.ExitError{Code: degradedExitCode}
			}
			return nil
		},
	}
}
