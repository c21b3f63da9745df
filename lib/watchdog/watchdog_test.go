// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migration.journal")
	want := State{
		Operation:   "migrate",
		SourceKeyID: "q83vEjRWeJA",
		ExpectedDID: "did:key:z6MkExample",
		StartedAt:   epoch,
	}

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Operation != want.Operation || got.SourceKeyID != want.SourceKeyID || got.ExpectedDID != want.ExpectedDID {
		t.Errorf("Read = %+v, want %+v", got, want)
	}
	if got.Outcome != OutcomePending {
		t.Errorf("Outcome = %q, want %q (default)", got.Outcome, OutcomePending)
	}
	if !got.StartedAt.Equal(epoch) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, epoch)
	}
}

func TestWriteRequiresOperation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	if err := Write(path, State{StartedAt: epoch}); err == nil {
		t.Fatal("Write without operation succeeded")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("journal file created despite error: %v", err)
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read error = %v, want os.ErrNotExist", err)
	}
}

func TestCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	if err := Write(path, State{Operation: "migrate", SourceKeyID: "id", StartedAt: epoch}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tests := []struct {
		name  string
		now   time.Time
		found bool
	}{
		{"fresh", epoch.Add(time.Minute), true},
		{"exactly max age", epoch.Add(time.Hour), true},
		{"stale", epoch.Add(time.Hour + time.Second), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			state, found, err := Check(path, time.Hour, test.now)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if found != test.found {
				t.Fatalf("found = %v, want %v", found, test.found)
			}
			if found && state.SourceKeyID != "id" {
				t.Errorf("SourceKeyID = %q, want %q", state.SourceKeyID, "id")
			}
		})
	}
}

func TestCheckMissing(t *testing.T) {
	_, found, err := Check(filepath.Join(t.TempDir(), "absent"), time.Hour, epoch)
	if err != nil || found {
		t.Fatalf("Check = found %v, err %v; want false, nil", found, err)
	}
}

func TestCheckCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	if err := os.WriteFile(path, []byte{0xff, 0xfe}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Check(path, time.Hour, epoch); err == nil {
		t.Fatal("Check succeeded on corrupt journal")
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	if err := Write(path, State{Operation: "migrate", StartedAt: epoch}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	if _, err := Read(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read after Clear = %v, want os.ErrNotExist", err)
	}
}
