// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/config"
	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("keybridge-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	if showVersion {
		fmt.Printf("keybridge-daemon %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := assemble(cfg, terminalPrompter(logger), clock.Real(), logger)
	if err != nil {
		return err
	}
	defer daemon.Close()

	return daemon.Serve(ctx)
}

// terminalPrompter prompts on the controlling terminal when both stdin
// and stderr are attached to one, and denies otherwise.
func terminalPrompter(logger *slog.Logger) consent.Prompter {
	stdin := int(os.Stdin.Fd())
	stderr := int(os.Stderr.Fd())
	if !term.IsTerminal(stdin) || !term.IsTerminal(stderr) {
		logger.Warn("no terminal attached; prompted consent requests will be denied")
		return consent.DenyAll{Logger: logger}
	}
	width, _, err := term.GetSize(stderr)
	if err != nil {
		width = 0
	}
	return consent.NewTerminal(os.Stdin, os.Stderr, width)
}
