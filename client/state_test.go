// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/keybridge/lib/statefile"
)

func TestLoadStateMissingIsNone(t *testing.T) {
	state, err := LoadState(filepath.Join(t.TempDir(), "state.cbor"))
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.Mode != ModeNone {
		t.Errorf("Mode = %q, want %q", state.Mode, ModeNone)
	}
}

func TestSaveLoadState(t *testing.T) {
	path := StatePath(t.TempDir())
	migratedAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	want := State{Mode: ModeBridge, DaemonDID: "did:key:z6MkExample", MigratedAt: migratedAt}
	if err := SaveState(path, want); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	got, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got.Mode != want.Mode || got.DaemonDID != want.DaemonDID || !got.MigratedAt.Equal(migratedAt) {
		t.Errorf("LoadState = %+v, want %+v", got, want)
	}
}

func TestLoadStateRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{"unknown mode", State{Mode: "remote"}},
		{"bridge without DID", State{Mode: ModeBridge}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := StatePath(t.TempDir())
			if err := statefile.WriteCBOR(path, test.state, 0600); err != nil {
				t.Fatalf("WriteCBOR: %v", err)
			}
			if _, err := LoadState(path); err == nil {
				t.Fatal("LoadState succeeded, want error")
			}
		})
	}
}
