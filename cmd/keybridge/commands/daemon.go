// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
)

type daemonParams struct {
	globalParams
	cli.JSONOutput
}

type daemonGenerateParams struct {
	daemonParams
	Origin string `flag:"origin" desc:"origin shown in the consent prompt (default: client.origin)"`
}

// daemonCommand groups direct daemon API calls that bypass the mode
// manager.
func daemonCommand(streams IO) *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Summary: "Call the daemon API directly",
		Subcommands: []*cli.Command{
			daemonStatusCommand(streams),
			daemonPublicKeyCommand(streams),
			daemonGenerateCommand(streams),
		},
	}
}

func daemonStatusCommand(streams IO) *cli.Command {
	var params daemonParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show GET /status",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			env, err := params.load(streams)
			if err != nil {
				return err
			}
			defer env.Close()

			status, err := env.daemon.Status(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, status); done {
				return err
			}
			fmt.Fprintf(streams.Out, "status:   %s\n", status.Status)
			fmt.Fprintf(streams.Out, "version:  %s\n", status.Version)
			fmt.Fprintf(streams.Out, "uptime:   %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
			if status.HasKeys {
				fmt.Fprintf(streams.Out, "key:      %s\n", status.PublicKeyFingerprint)
			} else {
				fmt.Fprintln(streams.Out, "key:      none")
			}
			return nil
		},
	}
}

func daemonPublicKeyCommand(streams IO) *cli.Command {
	var params daemonParams
	return &cli.Command{
		Name:    "public-key",
		Summary: "Show the daemon's public identity",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("public-key", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			env, err := params.load(streams)
			if err != nil {
				return err
			}
			defer env.Close()

			held, err := env.daemon.PublicKey(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, held); done {
				return err
			}
			fmt.Fprintf(streams.Out, "did:          %s\n", held.DID)
			fmt.Fprintf(streams.Out, "fingerprint:  %s\n", held.Fingerprint)
			fmt.Fprintf(streams.Out, "public key:   %s\n", held.PublicKey)
			return nil
		},
	}
}

func daemonGenerateCommand(streams IO) *cli.Command {
	var params daemonGenerateParams
	return &cli.Command{
		Name:    "generate",
		Summary: "Ask the daemon to create its identity",
		Description: "Ask the daemon to generate a new identity. Fails if it already holds one.\n" +
			"A surface with a local identity should use 'keybridge migrate' instead.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("generate", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := noArgs(args); err != nil {
				return err
			}
			env, err := params.load(streams)
			if err != nil {
				return err
			}
			defer env.Close()

			origin := params.Origin
			if origin == "" {
				origin = env.config.Client.Origin
			}
			created, err := env.daemon.Generate(ctx, origin)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Out, created); done {
				return err
			}
			fmt.Fprintf(streams.Out, "created %s\n", created.DID)
			return nil
		},
	}
}
