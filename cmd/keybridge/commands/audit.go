// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
	"github.com/bureau-foundation/keybridge/lib/audit"
)

type auditVerifyParams struct {
	globalParams
	cli.JSONOutput
	Path  string `flag:"path" desc:"audit log to verify (default: daemon.audit.path)"`
	Local bool   `flag:"local" desc:"verify this surface's local consent log instead"`
}

type auditVerifyOutput struct {
	Path     string   `json:"path"`
	Segments []string `json:"segments"`
	Records  int      `json:"records"`
	Head     string   `json:"head,omitempty"`
}

func auditCommand(streams IO) *cli.Command {
	return &cli.Command{
		Name:        "audit",
		Summary:     "Inspect consent audit logs",
		Subcommands: []*cli.Command{auditVerifyCommand(streams)},
	}
}

func auditVerifyCommand(streams IO) *cli.Command {
	var params auditVerifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check an audit log's hash chain",
		Description: "Verify the BLAKE3 hash chain across every rotated segment of an audit log\n" +
			"and the active file.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Run: func(_ context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			path := params.Path
			if path == "" {
				env, err := params.load(streams)
				if err != nil {
					return err
				}
				env.Close()
				path = env.config.Daemon.Audit.Path
				if params.Local {
					path = filepath.Join(env.config.Client.StateDir, localAuditFile)
				}
			}

			segments, err := audit.Segments(path)
			if err != nil {
				return err
			}
			if len(segments) == 0 {
				return fmt.Errorf("no audit log at %s", path)
			}
			result, err := audit.VerifyFiles(segments...)
			if err != nil {
				return err
			}

			output := auditVerifyOutput{Path: path, Segments: segments, Records: result.Records, Head: result.Head}
			if done, err := params.EmitJSON(streams.Out, output); done {
				return err
			}
			fmt.Fprintf(streams.Out, "%d records verified across %d segments\n", output.Records, len(output.Segments))
			if output.Head != "" {
				fmt.Fprintf(streams.Out, "head: %s\n", output.Head)
			}
			return nil
		},
	}
}
