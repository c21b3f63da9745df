// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keybridge/client"
	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
)

type localGenerateParams struct {
	globalParams
	cli.JSONOutput
	NonExtractable bool `flag:"non-extractable" desc:"seal the key so it can never be exported (no recovery phrase, no key migration)"`
}

type localRestoreParams struct {
	globalParams
	cli.JSONOutput
}

type localKeyOutput struct {
	DID         string `json:"did"`
	Fingerprint string `json:"fingerprint"`
	Extractable bool   `json:"extractable"`
	Mnemonic    string `json:"mnemonic,omitempty"`
}

func localCommand(streams IO) *cli.Command {
	return &cli.Command{
		Name:    "local",
		Summary: "Create or restore a local identity",
		Subcommands: []*cli.Command{
			localGenerateCommand(streams),
			localRestoreCommand(streams),
		},
	}
}

func localGenerateCommand(streams IO) *cli.Command {
	var params localGenerateParams
	return &cli.Command{
		Name:    "generate",
		Summary: "Create a local identity",
		Description: "Create a new Ed25519 identity sealed under a passphrase in the client state\n" +
			"directory. Extractable keys print a 24-word recovery phrase once.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("generate", &params) },
		Examples: []cli.Example{
			{Description: "Create a migratable identity", Command: "keybridge local generate"},
			{Description: "Create a key that never leaves this store", Command: "keybridge local generate --non-extractable"},
		},
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
			if err := env.readPassphrase(true); err != nil {
				return err
			}

			generated, err := manager.GenerateLocal(ctx, !params.NonExtractable)
			if err != nil {
				return err
			}
			return writeLocalKey(streams.Out, &params.JSONOutput, generated)
		},
	}
}

func localRestoreCommand(streams IO) *cli.Command {
	var params localRestoreParams
	return &cli.Command{
		Name:    "restore",
		Summary: "Restore a local identity from its recovery phrase",
		Description: "Recreate a local identity from a 24-word recovery phrase read from stdin\n" +
			"(without echo when stdin is a terminal).",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("restore", &params) },
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

			mnemonic, err := readMnemonic(streams)
			if err != nil {
				return err
			}
			if err := env.readPassphrase(true); err != nil {
				return err
			}
			restored, err := manager.RestoreLocal(ctx, mnemonic)
			if err != nil {
				return err
			}
			restored.Mnemonic = ""
			return writeLocalKey(streams.Out, &params.JSONOutput, restored)
		},
	}
}

func readMnemonic(streams IO) (string, error) {
	if file, ok := streams.In.(*os.File); ok && cli.IsTerminal(file) {
		buffer, err := cli.ReadSecret(streams.Err, "Recovery phrase: ")
		if err != nil {
			return "", err
		}
		defer buffer.Close()
		return buffer.String(), nil
	}
	line, err := bufio.NewReader(streams.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading recovery phrase: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no recovery phrase on stdin")
	}
	return line, nil
}

func writeLocalKey(out io.Writer, json *cli.JSONOutput, generated client.Generated) error {
	output := localKeyOutput{
		DID:         generated.Identity.DID,
		Fingerprint: generated.Identity.Fingerprint,
		Extractable: generated.Extractable,
		Mnemonic:    generated.Mnemonic,
	}
	if done, err := json.EmitJSON(out, output); done {
		return err
	}
	fmt.Fprintf(out, "identity:     %s\n", output.DID)
	fmt.Fprintf(out, "fingerprint:  %s\n", output.Fingerprint)
	if !output.Extractable {
		fmt.Fprintln(out, "extractable:  no (this key cannot be recovered or migrated)")
	}
	if output.Mnemonic != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Recovery phrase. Write it down; it is not shown again:")
		fmt.Fprintf(out, "  %s\n", output.Mnemonic)
	}
	return nil
}
