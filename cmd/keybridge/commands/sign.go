// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keybridge/client"
	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
)

type signParams struct {
	globalParams
	cli.JSONOutput
	Origin string `flag:"origin" desc:"origin shown in the consent prompt (default: client.origin)"`
	File   string `flag:"file,f" desc:"sign the contents of this file (- for stdin)"`
}

type signOutput struct {
	Signature   string      `json:"signature"`
	PublicKey   string      `json:"public_key"`
	DID         string      `json:"did"`
	Timestamp   string      `json:"timestamp"`
	ContentHash string      `json:"content_hash"`
	Mode        client.Mode `json:"mode"`
}

func signCommand(streams IO) *cli.Command {
	var params signParams
	return &cli.Command{
		Name:    "sign",
		Summary: "Sign text with the current identity",
		Usage:   "keybridge sign [flags] (TEXT | --file PATH)",
		Description: "Sign text with this surface's identity: the local key in local mode, the\n" +
			"daemon in bridge mode. Bridge mode never falls back to a local key.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("sign", &params) },
		Examples: []cli.Example{
			{Command: "keybridge sign 'release v1.4.0'"},
			{Description: "Sign a file and print JSON", Command: "keybridge sign --file notes.md --json"},
		},
		Run: func(ctx context.Context, args []string) error {
			content, err := signContent(streams, params.File, args)
			if err != nil {
				return err
			}
			env, err := params.load(streams)
			if err != nil {
				return err
			}
			defer env.Close()
			if params.Origin != "" {
				env.config.Client.Origin = params.Origin
			}
			manager, err := env.manager()
			if err != nil {
				return err
			}
			if manager.Mode() == client.ModeLocal {
				if err := env.readPassphrase(false); err != nil {
					return err
				}
			}

			signed, err := manager.Sign(ctx, content)
			if err != nil {
				return err
			}
			output := signOutput{
				Signature:   base64.StdEncoding.EncodeToString(signed.Signature),
				PublicKey:   base64.StdEncoding.EncodeToString(signed.Identity.PublicKey),
				DID:         signed.Identity.DID,
				Timestamp:   signed.Timestamp.UTC().Format(time.RFC3339),
				ContentHash: signed.ContentHash,
				Mode:        signed.Mode,
			}
			if done, err := params.EmitJSON(streams.Out, output); done {
				return err
			}
			fmt.Fprintf(streams.Out, "signature:     %s\n", output.Signature)
			fmt.Fprintf(streams.Out, "did:           %s\n", output.DID)
			fmt.Fprintf(streams.Out, "timestamp:     %s\n", output.Timestamp)
			fmt.Fprintf(streams.Out, "content hash:  %s\n", output.ContentHash)
			return nil
		},
	}
}

func signContent(streams IO, file string, args []string) ([]byte, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("pass either TEXT or --file, not both")
	case file == "-":
		content, err := io.ReadAll(streams.In)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return content, nil
	case file != "":
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return content, nil
	case len(args) > 0:
		return []byte(strings.Join(args, " ")), nil
	default:
		return nil, errors.New("nothing to sign: pass TEXT or --file")
	}
}
