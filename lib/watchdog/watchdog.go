// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bureau-foundation/keybridge/lib/statefile"
)

// Outcome is the recorded progress of a journaled transition.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeCommitted Outcome = "committed"
	OutcomeAborted   Outcome = "aborted"
)

// State is a journaled transition.
type State struct {
	// Operation names the transition, e.g. "migrate" or
	// "migrate-new-identity".
	Operation string `cbor:"operation"`

	// SourceKeyID is the fingerprint of the local key being moved.
	SourceKeyID string `cbor:"source_key_id"`

	// ExpectedDID is the DID the daemon should hold once the
	// transition commits. Empty when the daemon will mint a new
	// identity.
	ExpectedDID string `cbor:"expected_did,omitempty"`

	Outcome   Outcome   `cbor:"outcome"`
	StartedAt time.Time `cbor:"started_at"`
}

// Write atomically persists state at path with mode 0600.
func Write(path string, state State) error {
	if state.Operation == "" {
		return errors.New("watchdog: operation is required")
	}
	if state.Outcome == "" {
		state.Outcome = OutcomePending
	}
	if err := statefile.WriteCBOR(path, state, 0600); err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	return nil
}

// Read loads the journal at path. A missing file returns an error
// wrapping os.ErrNotExist.
func Read(path string) (State, error) {
	var state State
	if err := statefile.ReadCBOR(path, &state); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, err
		}
		return State{}, fmt.Errorf("watchdog: %w", err)
	}
	return state, nil
}

// Check returns the journal at path if it exists and is no older than
// maxAge relative to now. A missing or stale journal returns
// (State{}, false, nil). A stale journal is left in place; the caller
// decides whether to [Clear] it.
func Check(path string, maxAge time.Duration, now time.Time) (State, bool, error) {
	state, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	if now.Sub(state.StartedAt) > maxAge {
		return State{}, false, nil
	}
	return state, true, nil
}

// Clear removes the journal. A missing file is not an error.
func Clear(path string) error {
	if err := statefile.Remove(path); err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	return nil
}
