// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists small secrets (the daemon's private key
// seed) in an OS-level protected location. Three backends implement
// [Store]:
//
//   - keyring: the platform credential store (Secret Service on Linux,
//     Keychain on macOS, Credential Manager on Windows) via
//     github.com/zalando/go-keyring.
//   - sealed: age-encrypted files in a directory, decryptable only with
//     an age identity kept in a separate key file. For headless hosts
//     with no keyring daemon.
//   - memory: process-local, for tests and development. Rejected in
//     production by lib/config validation.
//
// Values cross the API as [secret.Buffer]. Get returns a new buffer the
// caller must close; Put does not consume its argument.
package credstore

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get and Delete when no value is stored
// under the name.
var ErrNotFound = errors.New("credstore: not found")

// Backend names accepted by Open.
const (
	BackendKeyring = "keyring"
	BackendSealed  = "sealed"
	BackendMemory  = "memory"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ValidateName rejects names that are unsafe as file names or keyring
// account names.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("credstore: invalid name %q", name)
	}
	return nil
}

// Options selects and configures a backend.
type Options struct {
	// Backend is one of BackendKeyring, BackendSealed, BackendMemory.
	Backend string

	// Service is the keyring service name.
	Service string

	// Directory holds sealed credential files.
	Directory string

	// KeyFile is the age identity for the sealed backend. Created on
	// first use.
	KeyFile string
}

// Open constructs the backend named by options.Backend.
func Open(options Options) (Store, error) {
	switch options.Backend {
	case BackendKeyring:
		if options.Service == "" {
			return nil, errors.New("credstore: keyring backend requires a service name")
		}
		return NewKeyring(options.Service), nil
	case BackendSealed:
		if options.Directory == "" || options.KeyFile == "" {
			return nil, errors.New("credstore: sealed backend requires directory and key_file")
		}
		store, err := OpenSealed(options.Directory, options.KeyFile)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("credstore: unknown backend %q", options.Backend)
	}
}
