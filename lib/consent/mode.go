// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consent

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Mode decides which requests reach a prompter.
type Mode string

const (
	// ModeAlways prompts for every request.
	ModeAlways Mode = "always"

	// ModeUnrecognized prompts only for origins not on the trusted
	// list.
	ModeUnrecognized Mode = "unrecognized"

	// ModeNever approves everything without prompting. Only selectable
	// through ModeEnvironmentVariable.
	ModeNever Mode = "never"
)

// ModeEnvironmentVariable overrides the configured mode. It is the only
// way to select ModeNever.
const ModeEnvironmentVariable = "KEYBRIDGE_CONSENT_MODE"

// DefaultTrustedOrigins are trusted in ModeUnrecognized when no list is
// configured.
var DefaultTrustedOrigins = []string{"keybridge-cli", "keybridge-test"}

// ResolveMode combines the configured mode with the environment
// override. An empty configured mode means ModeAlways. A configured
// ModeNever is rejected: configuration files are too easy to copy
// between machines for that to be safe.
func ResolveMode(configured, environment string) (Mode, error) {
	if environment != "" {
		mode := Mode(strings.ToLower(strings.TrimSpace(environment)))
		switch mode {
		case ModeAlways, ModeUnrecognized, ModeNever:
			return mode, nil
		}
		return "", fmt.Errorf("consent: %s=%q is not one of always, unrecognized, never", ModeEnvironmentVariable, environment)
	}

	switch Mode(configured) {
	case "":
		return ModeAlways, nil
	case ModeAlways, ModeUnrecognized:
		return Mode(configured), nil
	case ModeNever:
		return "", fmt.Errorf("consent: mode %q can only be set through %s", ModeNever, ModeEnvironmentVariable)
	}
	return "", fmt.Errorf("consent: unknown mode %q", configured)
}

// ResolveModeFromEnvironment is ResolveMode with the process
// environment.
func ResolveModeFromEnvironment(configured string) (Mode, error) {
	return ResolveMode(configured, os.Getenv(ModeEnvironmentVariable))
}

// LoadTrustedOrigins reads a JSONC array of origin strings. Comments and
// trailing commas are allowed.
func LoadTrustedOrigins(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("consent: reading trusted origins: %w", err)
	}
	var origins []string
	if err := json.Unmarshal(jsonc.ToJSON(data), &origins); err != nil {
		return nil, fmt.Errorf("consent: parsing trusted origins %s: %w", path, err)
	}
	cleaned := origins[:0]
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			cleaned = append(cleaned, origin)
		}
	}
	return cleaned, nil
}
