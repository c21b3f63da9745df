// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	defer keypair.Close()

	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("PrivateKey missing AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey: %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	first, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	plaintext := []byte("ed25519 seed goes here")
	ciphertext, err := Encrypt(plaintext, []string{first.PublicKey, second.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	for name, keypair := range map[string]*Keypair{"first": first, "second": second} {
		decrypted, err := Decrypt(ciphertext, keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Decrypt(%s) error: %v", name, err)
		}
		if !decrypted.Equal(plaintext) {
			t.Errorf("Decrypt(%s) returned different plaintext", name)
		}
		decrypted.Close()
	}
}

func TestDecryptWrongKey(t *testing.T) {
	owner, _ := GenerateKeypair()
	defer owner.Close()
	stranger, _ := GenerateKeypair()
	defer stranger.Close()

	ciphertext, err := Encrypt([]byte("payload"), []string{owner.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(ciphertext, stranger.PrivateKey); err == nil {
		t.Fatal("Decrypt with wrong key succeeded")
	}
}

func TestEncryptRequiresRecipient(t *testing.T) {
	if _, err := Encrypt([]byte("x"), nil); err == nil {
		t.Fatal("Encrypt with no recipients succeeded")
	}
	if _, err := Encrypt([]byte("x"), []string{"not-a-key"}); err == nil {
		t.Fatal("Encrypt with invalid recipient succeeded")
	}
}

func TestLoadOrCreateKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "identity.age")

	created, err := LoadOrCreateKeyFile(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKeyFile (create): %v", err)
	}
	defer created.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadOrCreateKeyFile(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKeyFile (load): %v", err)
	}
	defer loaded.Close()

	if loaded.PublicKey != created.PublicKey {
		t.Errorf("reloaded PublicKey = %q, want %q", loaded.PublicKey, created.PublicKey)
	}
	if !loaded.PrivateKey.Equal(created.PrivateKey.Bytes()) {
		t.Error("reloaded private key differs")
	}
}

func TestLoadOrCreateKeyFileRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.age")
	if err := os.WriteFile(path, []byte("# only a comment\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateKeyFile(path); err == nil {
		t.Fatal("LoadOrCreateKeyFile accepted a file with no identity")
	}
}
