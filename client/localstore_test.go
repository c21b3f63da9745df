// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/keybridge/lib/keyhandle"
	"github.com/bureau-foundation/keybridge/lib/schema"
	"github.com/bureau-foundation/keybridge/lib/secret"
	"github.com/tyler-smith/go-bip39"
)

// testKDF keeps Argon2id fast in tests.
var testKDF = KDFParams{Time: 1, Memory: 1024, Threads: 1}

var storeEpoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	return NewLocalStore(LocalKeyPath(t.TempDir()), testKDF, func() time.Time { return storeEpoch })
}

func mustPassphrase(t *testing.T, text string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(text))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestLocalStoreGenerateAndOpen(t *testing.T) {
	store := newTestStore(t)
	generated, err := store.Generate(mustPassphrase(t, "correct horse"), true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if words := strings.Fields(generated.Mnemonic); len(words) != 24 {
		t.Errorf("mnemonic has %d words, want 24", len(words))
	}
	if !generated.CreatedAt.Equal(storeEpoch) {
		t.Errorf("CreatedAt = %v, want %v", generated.CreatedAt, storeEpoch)
	}

	described, err := store.Describe()
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if described.Identity.DID != generated.Identity.DID || !described.Extractable {
		t.Errorf("Describe = %+v, want DID %s extractable", described, generated.Identity.DID)
	}

	handle, err := store.Open(mustPassphrase(t, "correct horse"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer handle.Close()
	if _, ok := handle.(keyhandle.Exportable); !ok {
		t.Error("extractable key did not open as keyhandle.Exportable")
	}
	signature, err := handle.Sign([]byte("hello"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(generated.Identity.PublicKey, []byte("hello"), signature) {
		t.Error("signature does not verify against the generated identity")
	}
}

func TestLocalStoreWrongPassphrase(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Generate(mustPassphrase(t, "correct horse"), true); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := store.Open(mustPassphrase(t, "battery staple")); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Open with wrong passphrase: err = %v, want ErrWrongPassphrase", err)
	}
}

func TestLocalStoreRefusesOverwrite(t *testing.T) {
	store := newTestStore(t)
	first, err := store.Generate(mustPassphrase(t, "pass"), true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := store.Generate(mustPassphrase(t, "pass"), true); !errors.Is(err, schema.ErrAlreadyExists) {
		t.Errorf("second Generate: err = %v, want ErrAlreadyExists", err)
	}
	described, err := store.Describe()
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if described.Identity.DID != first.Identity.DID {
		t.Error("second Generate replaced the stored identity")
	}
}

func TestLocalStoreRequiresPassphrase(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Generate(nil, true); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("Generate without passphrase: err = %v, want ErrValidation", err)
	}
	if exists, _ := store.Exists(); exists {
		t.Error("key written despite missing passphrase")
	}
}

func TestLocalStoreRestore(t *testing.T) {
	original := newTestStore(t)
	generated, err := original.Generate(mustPassphrase(t, "one"), true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	restored := newTestStore(t)
	mnemonic := "  " + strings.ToUpper(generated.Mnemonic) + "\n"
	again, err := restored.Restore(mnemonic, mustPassphrase(t, "two"))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if again.Identity.DID != generated.Identity.DID {
		t.Errorf("restored DID = %s, want %s", again.Identity.DID, generated.Identity.DID)
	}
	if again.Mnemonic != generated.Mnemonic {
		t.Error("restored mnemonic differs from the original")
	}
}

func TestLocalStoreRestoreRejects(t *testing.T) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		t.Fatalf("NewEntropy: %v", err)
	}
	twelveWords, err := bip39.NewMnemonic(entropy)
	if err != nil {
		t.Fatalf("NewMnemonic: %v", err)
	}

	tests := []struct {
		name     string
		mnemonic string
	}{
		{"twelve words", twelveWords},
		{"not a mnemonic", "correct horse battery staple"},
		{"empty", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := newTestStore(t)
			if _, err := store.Restore(test.mnemonic, mustPassphrase(t, "pass")); !errors.Is(err, schema.ErrValidation) {
				t.Errorf("Restore: err = %v, want ErrValidation", err)
			}
			if exists, _ := store.Exists(); exists {
				t.Error("key written for rejected mnemonic")
			}
		})
	}
}

func TestLocalStoreNonExtractable(t *testing.T) {
	store := newTestStore(t)
	generated, err := store.Generate(mustPassphrase(t, "pass"), false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if generated.Mnemonic != "" {
		t.Error("non-extractable key returned a recovery phrase")
	}

	handle, err := store.Open(mustPassphrase(t, "pass"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer handle.Close()
	if _, ok := handle.(keyhandle.Exportable); ok {
		t.Error("non-extractable key opened as keyhandle.Exportable")
	}
	if handle.Extractable() {
		t.Error("Extractable() = true for a non-extractable key")
	}
	signature, err := handle.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(generated.Identity.PublicKey, []byte("payload"), signature) {
		t.Error("signature does not verify")
	}
}

func TestLocalStoreWipe(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Generate(mustPassphrase(t, "pass"), true); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := store.Wipe(); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if exists, _ := store.Exists(); exists {
		t.Error("envelope still present after Wipe")
	}
	if _, err := store.Describe(); !errors.Is(err, ErrNoLocalKey) {
		t.Errorf("Describe after Wipe: err = %v, want ErrNoLocalKey", err)
	}
	if err := store.Wipe(); err != nil {
		t.Errorf("second Wipe: %v", err)
	}
}
