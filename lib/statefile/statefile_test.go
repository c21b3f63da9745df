// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `cbor:"name"`
	Count int    `cbor:"count"`
}

func TestWriteCreatesParentAndMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.cbor")

	if err := Write(path, []byte("payload"), 0600); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the target (temporary file leaked?)", len(entries))
	}
}

func TestWriteReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")

	if err := WriteCBOR(path, record{Name: "first", Count: 1}, 0600); err != nil {
		t.Fatalf("WriteCBOR: %v", err)
	}
	if err := WriteCBOR(path, record{Name: "second", Count: 2}, 0600); err != nil {
		t.Fatalf("WriteCBOR: %v", err)
	}

	var got record
	if err := ReadCBOR(path, &got); err != nil {
		t.Fatalf("ReadCBOR: %v", err)
	}
	if got != (record{Name: "second", Count: 2}) {
		t.Errorf("ReadCBOR = %+v, want second record", got)
	}
}

func TestReadCBORMissing(t *testing.T) {
	var got record
	err := ReadCBOR(filepath.Join(t.TempDir(), "absent"), &got)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadCBOR error = %v, want os.ErrNotExist", err)
	}
}

func TestReadCBORCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var got record
	if err := ReadCBOR(path, &got); err == nil {
		t.Fatal("expected decode error for corrupt file")
	}
}

func TestRemoveAndExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")

	if exists, err := Exists(path); err != nil || exists {
		t.Fatalf("Exists before write = %v, %v", exists, err)
	}
	if err := Write(path, []byte("x"), 0600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if exists, err := Exists(path); err != nil || !exists {
		t.Fatalf("Exists after write = %v, %v", exists, err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if exists, _ := Exists(path); exists {
		t.Error("file still exists after Remove")
	}
}
