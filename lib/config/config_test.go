// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/credstore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keybridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Daemon.Listen != "/ip4/127.0.0.1/tcp/7823" {
		t.Errorf("Daemon.Listen = %q", cfg.Daemon.Listen)
	}
	if cfg.Daemon.Consent.Deadline != 60*time.Second {
		t.Errorf("Consent.Deadline = %v, want 60s", cfg.Daemon.Consent.Deadline)
	}
	if !cfg.Daemon.Consent.PromptGenerate {
		t.Error("PromptGenerate should default to true")
	}
	if cfg.Client.ProbeInterval != 5*time.Second || cfg.Client.ProbeTimeout != 2*time.Second || cfg.Client.RequestTimeout != 90*time.Second {
		t.Errorf("client timeouts = %v/%v/%v", cfg.Client.ProbeInterval, cfg.Client.ProbeTimeout, cfg.Client.RequestTimeout)
	}
}

func TestLoad_RequiresKeybridgeConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when KEYBRIDGE_CONFIG not set")
	}
	if !strings.HasPrefix(err.Error(), "KEYBRIDGE_CONFIG environment variable not set") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_WithKeybridgeConfig(t *testing.T) {
	path := writeConfig(t, `
environment: staging
paths:
  root: /test/root
daemon:
  listen: /ip4/127.0.0.1/tcp/9000
  consent:
    deadline: 30s
client:
  probe_interval: 10s
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("Environment = %s, want staging", cfg.Environment)
	}
	if cfg.Daemon.Listen != "/ip4/127.0.0.1/tcp/9000" {
		t.Errorf("Listen = %q", cfg.Daemon.Listen)
	}
	if cfg.Daemon.Consent.Deadline != 30*time.Second {
		t.Errorf("Deadline = %v, want 30s", cfg.Daemon.Consent.Deadline)
	}
	if cfg.Client.ProbeInterval != 10*time.Second {
		t.Errorf("ProbeInterval = %v, want 10s", cfg.Client.ProbeInterval)
	}
	// Untouched fields keep their defaults.
	if cfg.Client.ProbeTimeout != 2*time.Second {
		t.Errorf("ProbeTimeout = %v, want default 2s", cfg.Client.ProbeTimeout)
	}
	if cfg.Daemon.Audit.Path != "/test/root/audit/consent.jsonl" {
		t.Errorf("Audit.Path = %q, want expanded under root", cfg.Daemon.Audit.Path)
	}
}

func TestResolve_DefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if strings.Contains(cfg.Client.StateDir, "${") {
		t.Errorf("StateDir not expanded: %q", cfg.Client.StateDir)
	}
	if !strings.HasPrefix(cfg.Client.StateDir, cfg.Paths.Root) {
		t.Errorf("StateDir %q not under root %q", cfg.Client.StateDir, cfg.Paths.Root)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
paths:
  root: /base
daemon:
  credential_store:
    backend: keyring
development:
  paths:
    root: /dev
  daemon:
    credential_store_backend: memory
    prompt_generate: false
  client:
    daemon_url: http://127.0.0.1:9999
staging:
  paths:
    root: /staging
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Paths.Root != "/dev" {
		t.Errorf("Root = %q, want /dev", cfg.Paths.Root)
	}
	if cfg.Daemon.CredentialStore.Backend != credstore.BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.Daemon.CredentialStore.Backend)
	}
	if cfg.Daemon.Consent.PromptGenerate {
		t.Error("PromptGenerate should be overridden to false")
	}
	if cfg.Client.DaemonURL != "http://127.0.0.1:9999" {
		t.Errorf("DaemonURL = %q", cfg.Client.DaemonURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestProductionIsStrict(t *testing.T) {
	t.Setenv(consent.ModeEnvironmentVariable, "")
	path := writeConfig(t, `
environment: production
daemon:
  credential_store:
    backend: memory
  consent:
    mode: unrecognized
    prompt_generate: false
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Daemon.Consent.Mode != string(consent.ModeAlways) {
		t.Errorf("Consent.Mode = %q, want always", cfg.Daemon.Consent.Mode)
	}
	if !cfg.Daemon.Consent.PromptGenerate {
		t.Error("production must prompt for generation")
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected memory backend to be rejected in production")
	}
	if !strings.Contains(err.Error(), "memory is not allowed in production") {
		t.Errorf("error = %q", err)
	}
}

func TestConsentMode(t *testing.T) {
	tests := []struct {
		name        string
		environment Environment
		configured  string
		override    string
		want        consent.Mode
		wantErr     bool
	}{
		{"default", Development, "", "", consent.ModeAlways, false},
		{"configured unrecognized", Development, "unrecognized", "", consent.ModeUnrecognized, false},
		{"configured never", Development, "never", "", "", true},
		{"environment never", Development, "always", "never", consent.ModeNever, false},
		{"production environment never", Production, "always", "never", "", true},
		{"production environment always", Production, "always", "always", consent.ModeAlways, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv(consent.ModeEnvironmentVariable, test.override)
			cfg := Default()
			cfg.Environment = test.environment
			cfg.Daemon.Consent.Mode = test.configured

			got, err := cfg.ConsentMode()
			if test.wantErr {
				if err == nil {
					t.Fatalf("ConsentMode() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConsentMode: %v", err)
			}
			if got != test.want {
				t.Errorf("ConsentMode() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestTrustedOrigins(t *testing.T) {
	cfg := Default()

	origins, err := cfg.TrustedOrigins()
	if err != nil {
		t.Fatalf("TrustedOrigins: %v", err)
	}
	if len(origins) != len(consent.DefaultTrustedOrigins) {
		t.Errorf("origins = %v, want defaults", origins)
	}

	file := filepath.Join(t.TempDir(), "origins.jsonc")
	if err := os.WriteFile(file, []byte(`[
  // browser extension
  "chrome-extension://abc",
]`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Daemon.Consent.TrustedOrigins = []string{"keybridge-cli"}
	cfg.Daemon.Consent.TrustedOriginsFile = file

	origins, err = cfg.TrustedOrigins()
	if err != nil {
		t.Fatalf("TrustedOrigins: %v", err)
	}
	if strings.Join(origins, ",") != "keybridge-cli,chrome-extension://abc" {
		t.Errorf("origins = %v", origins)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	t.Setenv(consent.ModeEnvironmentVariable, "")
	cfg := Default()
	cfg.expandVariables()
	cfg.Environment = "bogus"
	cfg.Daemon.Listen = "not-a-multiaddr"
	cfg.Daemon.CredentialStore.Backend = "floppy"
	cfg.Client.ProbeTimeout = time.Minute

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"invalid environment", "daemon.listen", "unknown backend", "probe_timeout must not exceed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	t.Setenv(consent.ModeEnvironmentVariable, "")
	cfg := Default()
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate(defaults): %v", err)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("KEYBRIDGE_TEST_VAR", "from-env")
	vars := map[string]string{"KEYBRIDGE_ROOT": "/root/kb"}

	tests := []struct {
		input string
		want  string
	}{
		{"${KEYBRIDGE_ROOT}/audit", "/root/kb/audit"},
		{"${KEYBRIDGE_TEST_VAR}", "from-env"},
		{"${KEYBRIDGE_UNSET_VAR:-fallback}", "fallback"},
		{"${KEYBRIDGE_UNSET_VAR}", ""},
		{"plain", "plain"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.Root = root
	cfg.Daemon.CredentialStore.Backend = credstore.BackendSealed
	cfg.expandVariables()

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, dir := range []string{filepath.Join(root, "audit"), filepath.Join(root, "client"), filepath.Join(root, "credentials")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("stat %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}
