// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/bureau-foundation/keybridge/lib/secret"
)

func newValue(t *testing.T, content string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(content))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	if _, err := store.Get("daemon-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store error = %v, want ErrNotFound", err)
	}
	if err := store.Delete("daemon-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete on empty store error = %v, want ErrNotFound", err)
	}

	value := newValue(t, "seed-bytes-0123456789abcdef01234")
	if err := store.Put("daemon-key", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if value.Closed() {
		t.Fatal("Put consumed the caller's buffer")
	}

	got, err := store.Get("daemon-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Equal([]byte("seed-bytes-0123456789abcdef01234")) {
		t.Errorf("Get returned %q", got.String())
	}
	got.Close()

	if err := store.Put("daemon-key", newValue(t, "replacement")); err != nil {
		t.Fatalf("Put (replace): %v", err)
	}
	got, err = store.Get("daemon-key")
	if err != nil {
		t.Fatalf("Get after replace: %v", err)
	}
	if got.String() != "replacement" {
		t.Errorf("Get after replace = %q", got.String())
	}
	got.Close()

	if err := store.Delete("daemon-key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("daemon-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete error = %v, want ErrNotFound", err)
	}

	if err := store.Put("../escape", value); err == nil {
		t.Error("Put accepted a path-traversal name")
	}
}

func TestMemory(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	exerciseStore(t, store)
}

func TestMemorySnapshot(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	if err := store.Put("a", newValue(t, "one")); err != nil {
		t.Fatal(err)
	}
	snapshot := store.Snapshot()
	if !bytes.Equal(snapshot["a"], []byte("one")) || len(snapshot) != 1 {
		t.Errorf("Snapshot = %v", snapshot)
	}
}

func TestKeyring(t *testing.T) {
	keyring.MockInit()
	store := NewKeyring("keybridge-test")
	exerciseStore(t, store)
}

func TestKeyringBinaryValues(t *testing.T) {
	keyring.MockInit()
	store := NewKeyring("keybridge-test")

	raw := []byte{0x00, 0xff, 0x10, 0x00, 0x7f}
	value, err := secret.NewFromBytes(append([]byte(nil), raw...))
	if err != nil {
		t.Fatal(err)
	}
	defer value.Close()
	if err := store.Put("binary", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get("binary")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer got.Close()
	if !got.Equal(raw) {
		t.Errorf("Get = %x, want %x", got.Bytes(), raw)
	}
}

func TestSealed(t *testing.T) {
	root := t.TempDir()
	store, err := OpenSealed(filepath.Join(root, "creds"), filepath.Join(root, "identity.age"))
	if err != nil {
		t.Fatalf("OpenSealed: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)
}

func TestSealedFilesAreEncrypted(t *testing.T) {
	root := t.TempDir()
	store, err := OpenSealed(filepath.Join(root, "creds"), filepath.Join(root, "identity.age"))
	if err != nil {
		t.Fatalf("OpenSealed: %v", err)
	}
	defer store.Close()

	if err := store.Put("daemon-key", newValue(t, "plaintext-marker")); err != nil {
		t.Fatal(err)
	}
	onDisk, err := os.ReadFile(filepath.Join(root, "creds", "daemon-key.age"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(onDisk, []byte("plaintext-marker")) {
		t.Error("sealed file contains plaintext")
	}

	// A second store opened on the same key file reads the value.
	reopened, err := OpenSealed(filepath.Join(root, "creds"), filepath.Join(root, "identity.age"))
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Get("daemon-key")
	if err != nil {
		t.Fatalf("Get from reopened store: %v", err)
	}
	defer got.Close()
	if got.String() != "plaintext-marker" {
		t.Errorf("reopened Get = %q", got.String())
	}
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		options Options
		wantErr bool
	}{
		{"memory", Options{Backend: BackendMemory}, false},
		{"keyring", Options{Backend: BackendKeyring, Service: "keybridge"}, false},
		{"keyring without service", Options{Backend: BackendKeyring}, true},
		{"sealed", Options{Backend: BackendSealed, Directory: filepath.Join(root, "d"), KeyFile: filepath.Join(root, "k")}, false},
		{"sealed without key file", Options{Backend: BackendSealed, Directory: root}, true},
		{"unknown", Options{Backend: "floppy"}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store, err := Open(test.options)
			if (err != nil) != test.wantErr {
				t.Fatalf("Open error = %v, wantErr %v", err, test.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}
