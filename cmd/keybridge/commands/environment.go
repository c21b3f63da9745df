// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/bureau-foundation/keybridge/client"
	"github.com/bureau-foundation/keybridge/cmd/keybridge/cli"
	"github.com/bureau-foundation/keybridge/lib/audit"
	"github.com/bureau-foundation/keybridge/lib/bridgeclient"
	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/config"
	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/secret"
)

// IO is the command tree's standard streams.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// localAuditFile is the consent audit log for local key operations,
// inside the client state directory.
const localAuditFile = "consent.jsonl"

// globalParams are accepted by every command that reads configuration.
type globalParams struct {
	ConfigPath string `flag:"config" desc:"config file (default: $KEYBRIDGE_CONFIG, then built-in defaults)"`
	Verbose    bool   `flag:"verbose,v" desc:"log progress to stderr"`
}

// environment is what a command needs to reach the daemon and the
// local surface.
type environment struct {
	streams    IO
	config     *config.Config
	logger     *slog.Logger
	daemon     *bridgeclient.Client
	auditLog   *audit.Log
	passphrase *secret.Buffer
}

func (p *globalParams) load(streams IO) (*environment, error) {
	cfg, err := config.Resolve(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	level := slog.LevelWarn
	if p.Verbose {
		level = slog.LevelInfo
	}
	daemon, err := bridgeclient.New(bridgeclient.Config{
		BaseURL:        cfg.Client.DaemonURL,
		RequestTimeout: cfg.Client.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &environment{
		streams: streams,
		config:  cfg,
		logger:  cli.NewCommandLogger(streams.Err, level),
		daemon:  daemon,
	}, nil
}

// manager builds the client mode manager with a local consent gate
// that prompts on the terminal and audits to the state directory.
func (e *environment) manager() (*client.Manager, error) {
	mode, err := e.config.ConsentMode()
	if err != nil {
		return nil, err
	}
	trusted, err := e.config.TrustedOrigins()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.config.Client.StateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	auditLog, err := audit.Open(filepath.Join(e.config.Client.StateDir, localAuditFile), e.config.Daemon.Audit.MaxBytes, e.logger)
	if err != nil {
		return nil, err
	}
	e.auditLog = auditLog

	gate := consent.NewGate(consent.GateConfig{
		Mode:           mode,
		Deadline:       e.config.Daemon.Consent.Deadline,
		PromptGenerate: e.config.Daemon.Consent.PromptGenerate,
		TrustedOrigins: trusted,
		Prompter:       e.prompter(),
		Audit:          auditLog,
		Clock:          clock.Real(),
		Logger:         e.logger,
	})

	return client.New(client.Config{
		Daemon:        e.daemon,
		StateDir:      e.config.Client.StateDir,
		Origin:        e.config.Client.Origin,
		Gate:          gate,
		Passphrase:    e.passphraseCopy,
		ProbeInterval: e.config.Client.ProbeInterval,
		ProbeTimeout:  e.config.Client.ProbeTimeout,
		Clock:         clock.Real(),
		Logger:        e.logger,
	})
}

func (e *environment) prompter() consent.Prompter {
	if !cli.IsTerminal(os.Stdin) || !cli.IsTerminal(os.Stderr) {
		return consent.DenyAll{Logger: e.logger}
	}
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		width = 0
	}
	return consent.NewTerminal(os.Stdin, e.streams.Err, width)
}

// readPassphrase loads the local store passphrase before any consent
// prompt can claim the terminal. With confirm set, an interactive
// passphrase is asked for twice.
func (e *environment) readPassphrase(confirm bool) error {
	if e.passphrase != nil {
		return nil
	}
	if path := e.config.Client.PassphraseFile; path != "" {
		passphrase, err := secret.ReadFromPath(path)
		if err != nil {
			return fmt.Errorf("reading client.passphrase_file: %w", err)
		}
		e.passphrase = passphrase
		return nil
	}

	passphrase, err := cli.ReadSecret(e.streams.Err, "Passphrase: ")
	if errors.Is(err, cli.ErrNotTerminal) {
		return errors.New("no passphrase: set client.passphrase_file or run from a terminal")
	}
	if err != nil {
		return err
	}
	if confirm {
		again, err := cli.ReadSecret(e.streams.Err, "Repeat passphrase: ")
		if err != nil {
			passphrase.Close()
			return err
		}
		match := passphrase.Equal(again.Bytes())
		again.Close()
		if !match {
			passphrase.Close()
			return errors.New("passphrases do not match")
		}
	}
	e.passphrase = passphrase
	return nil
}

// passphraseCopy hands the manager its own copy of the passphrase; the
// manager closes what it receives.
func (e *environment) passphraseCopy() (*secret.Buffer, error) {
	if e.passphrase == nil {
		return nil, errors.New("passphrase was not read")
	}
	copied := make([]byte, e.passphrase.Len())
	copy(copied, e.passphrase.Bytes())
	return secret.NewFromBytes(copied)
}

func (e *environment) Close() {
	if e.passphrase != nil {
		e.passphrase.Close()
	}
	if e.auditLog != nil {
		if err := e.auditLog.Close(); err != nil {
			e.logger.Warn("closing local audit log", "error", err)
		}
	}
}
