// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/keybridge/lib/audit"
	"github.com/bureau-foundation/keybridge/lib/bridgeclient"
	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/config"
	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/credstore"
	"github.com/bureau-foundation/keybridge/lib/testutil"
)

var approve = consent.PrompterFunc(func(context.Context, consent.Request) (bool, error) { return true, nil })

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(consent.ModeEnvironmentVariable, "")

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Root = root
	cfg.Daemon.Listen = "/ip4/127.0.0.1/tcp/0"
	cfg.Daemon.CredentialStore.Backend = credstore.BackendMemory
	cfg.Daemon.Audit.Path = filepath.Join(root, "audit", "consent.jsonl")
	cfg.Daemon.RateLimit = config.RateLimitConfig{}
	cfg.Client.StateDir = filepath.Join(root, "client")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func TestAssembleServesAPI(t *testing.T) {
	cfg := testConfig(t)
	daemon, err := assemble(cfg, approve, clock.Real(), testutil.Logger(t))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- daemon.Serve(ctx) }()

	select {
	case <-daemon.http.Ready():
	case err := <-served:
		t.Fatalf("Serve returned before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	client, err := bridgeclient.New(bridgeclient.Config{BaseURL: daemon.http.URL()})
	if err != nil {
		t.Fatalf("bridgeclient.New: %v", err)
	}
	created, err := client.Generate(ctx, "keybridge-cli")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	signed, err := client.Sign(ctx, []byte("hello"), "keybridge-cli")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if signed.DID != created.DID {
		t.Errorf("signed by %s, want %s", signed.DID, created.DID)
	}

	cancel()
	if err := testutil.RequireReceive[error](t, served, 10*time.Second, "Serve did not return after cancel"); err != nil {
		t.Errorf("Serve: %v", err)
	}
	if err := daemon.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	result, err := audit.VerifyFile(cfg.Daemon.Audit.Path)
	if err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	if result.Records != 2 {
		t.Errorf("audit records = %d, want 2 (generate and sign)", result.Records)
	}
}

func TestAssembleRejectsNonLoopbackListen(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Listen = "/ip4/192.0.2.1/tcp/7823"
	if _, err := assemble(cfg, approve, clock.Real(), testutil.Logger(t)); err == nil {
		t.Fatal("assemble succeeded with a non-loopback listen address")
	}
}

func TestAssembleRejectsNeverFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Consent.Mode = string(consent.ModeNever)
	if _, err := assemble(cfg, approve, clock.Real(), testutil.Logger(t)); err == nil {
		t.Fatal("assemble accepted consent mode never from the config file")
	}
}

func TestRunFlags(t *testing.T) {
	if err := run([]string{"--version"}); err != nil {
		t.Errorf("run --version: %v", err)
	}
	if err := run([]string{"--bogus"}); err == nil {
		t.Error("run accepted an unknown flag")
	}
	if err := run([]string{"extra"}); err == nil {
		t.Error("run accepted a positional argument")
	}
}
