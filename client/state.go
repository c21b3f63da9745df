// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/keybridge/lib/statefile"
)

// Mode is where this surface's signing identity lives.
type Mode string

const (
	// ModeNone means no identity: nothing local and no daemon key seen.
	ModeNone Mode = "none"

	// ModeLocal means the identity is in this surface's local store.
	ModeLocal Mode = "local"

	// ModeBridge means the daemon holds the identity. There is no way
	// back to ModeLocal.
	ModeBridge Mode = "bridge"
)

// State is the persisted mode of one client surface.
type State struct {
	Mode Mode `cbor:"mode"`

	// DaemonDID is the identity the daemon held when this surface
	// entered bridge mode. Signatures from any other identity are
	// refused.
	DaemonDID string `cbor:"daemon_did,omitempty"`

	// MigratedAt is when bridge mode was entered. Zero otherwise.
	MigratedAt time.Time `cbor:"migrated_at,omitempty"`
}

// File names inside the state directory.
const (
	stateFileName    = "state.cbor"
	localKeyFileName = "local-key.cbor"
	journalFileName  = "migration.journal"
)

// StatePath returns the state file path inside dir.
func StatePath(dir string) string { return filepath.Join(dir, stateFileName) }

// LocalKeyPath returns the local key envelope path inside dir.
func LocalKeyPath(dir string) string { return filepath.Join(dir, localKeyFileName) }

// JournalPath returns the migration journal path inside dir.
func JournalPath(dir string) string { return filepath.Join(dir, journalFileName) }

// LoadState reads the state file. A missing file is ModeNone.
func LoadState(path string) (State, error) {
	var state State
	err := statefile.ReadCBOR(path, &state)
	if errors.Is(err, os.ErrNotExist) {
		return State{Mode: ModeNone}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("client: loading state: %w", err)
	}
	switch state.Mode {
	case ModeNone, ModeLocal, ModeBridge:
	default:
		return State{}, fmt.Errorf("client: state file %s has unknown mode %q", path, state.Mode)
	}
	if state.Mode == ModeBridge && state.DaemonDID == "" {
		return State{}, fmt.Errorf("client: state file %s is in bridge mode without a daemon DID", path)
	}
	return state, nil
}

// SaveState atomically writes the state file with mode 0600.
func SaveState(path string, state State) error {
	if err := statefile.WriteCBOR(path, state, 0600); err != nil {
		return fmt.Errorf("client: saving state: %w", err)
	}
	return nil
}
