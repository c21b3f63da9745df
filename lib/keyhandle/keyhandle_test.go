// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keyhandle

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/secret"
)

func testSeed(t *testing.T, fill byte) *secret.Buffer {
	t.Helper()
	seed, err := secret.NewFromBytes(bytes.Repeat([]byte{fill}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { seed.Close() })
	return seed
}

func TestFromSeedSignVerify(t *testing.T) {
	handle, err := FromSeed(testSeed(t, 9))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	defer handle.Close()

	message := []byte("attest this")
	signature, err := handle.Sign(message)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(handle.Public(), message, signature) {
		t.Fatal("signature does not verify")
	}

	// Any single-bit change to the message breaks verification.
	for index := range message {
		for bit := 0; bit < 8; bit++ {
			mutated := bytes.Clone(message)
			mutated[index] ^= 1 << bit
			if ed25519.Verify(handle.Public(), mutated, signature) {
				t.Fatalf("signature verified over message with bit %d of byte %d flipped", bit, index)
			}
		}
	}
}

func TestFromSeedMatchesStandardDerivation(t *testing.T) {
	handle, err := FromSeed(testSeed(t, 1))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	defer handle.Close()

	want := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{1}, ed25519.SeedSize)).Public().(ed25519.PublicKey)
	if !handle.Public().Equal(want) {
		t.Error("public key differs from ed25519.NewKeyFromSeed")
	}
}

func TestExport(t *testing.T) {
	handle, err := FromSeed(testSeed(t, 5))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	defer handle.Close()

	exported, err := handle.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	defer exported.Close()
	if !exported.Equal(bytes.Repeat([]byte{5}, ed25519.SeedSize)) {
		t.Error("exported seed differs from input seed")
	}
}

func TestFromSeedRejectsWrongLength(t *testing.T) {
	short, err := secret.NewFromBytes(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	defer short.Close()
	if _, err := FromSeed(short); !errors.Is(err, ErrInvalidSeed) {
		t.Errorf("FromSeed(16 bytes) error = %v, want ErrInvalidSeed", err)
	}
}

func TestNonExtractable(t *testing.T) {
	handle, err := NonExtractable(testSeed(t, 2))
	if err != nil {
		t.Fatalf("NonExtractable: %v", err)
	}
	defer handle.Close()

	if handle.Extractable() {
		t.Error("Extractable() = true for opaque handle")
	}
	if _, ok := handle.(Exportable); ok {
		t.Error("opaque handle implements Exportable")
	}
	signature, err := handle.Sign([]byte("x"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(handle.Public(), []byte("x"), signature) {
		t.Error("opaque signature does not verify")
	}
}

func TestSignAfterClose(t *testing.T) {
	handle, err := Generate(true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := handle.Sign([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Sign after Close error = %v, want ErrClosed", err)
	}
	if err := handle.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestGenerateProducesDistinctKeys(t *testing.T) {
	first, err := Generate(true)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := Generate(false)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if first.Public().Equal(second.Public()) {
		t.Error("two generated keys are equal")
	}
}

func TestFromSigner(t *testing.T) {
	_, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	handle, err := FromSigner(privateKey)
	if err != nil {
		t.Fatalf("FromSigner: %v", err)
	}
	signature, err := handle.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(handle.Public(), []byte("payload"), signature) {
		t.Error("signature does not verify")
	}
	if handle.Extractable() {
		t.Error("signer-backed handle reports extractable")
	}
}

func TestNewRecord(t *testing.T) {
	handle, err := FromSeed(testSeed(t, 3))
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	record, err := NewRecord(handle, CustodyLocal, created)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	wantID, _ := identity.Fingerprint(handle.Public())
	if record.ID != wantID {
		t.Errorf("ID = %q, want fingerprint %q", record.ID, wantID)
	}
	if record.Algorithm != AlgorithmEd25519 || record.Custody != CustodyLocal || !record.CreatedAt.Equal(created) {
		t.Errorf("NewRecord = %+v", record)
	}
}

func TestSignWithProtectedSeed(t *testing.T) {
	builders := []struct {
		name  string
		build func(*secret.Buffer) (Handle, error)
	}{
		{"extractable", func(seed *secret.Buffer) (Handle, error) { return FromSeed(seed) }},
		{"opaque", NonExtractable},
	}
	for _, builder := range builders {
		t.Run(builder.name, func(t *testing.T) {
			seed, err := secret.New(ed25519.SeedSize)
			if err != nil {
				t.Fatalf("secret.New: %v", err)
			}
			defer seed.Close()
			copy(seed.Bytes(), bytes.Repeat([]byte{7}, ed25519.SeedSize))

			handle, err := builder.build(seed)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			defer handle.Close()

			want := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
			for _, message := range []string{"hello", "hello", "second message"} {
				signature, err := handle.Sign([]byte(message))
				if err != nil {
					t.Fatalf("Sign(%q): %v", message, err)
				}
				if !bytes.Equal(signature, ed25519.Sign(want, []byte(message))) {
					t.Errorf("Sign(%q) differs from the standard library signature", message)
				}
			}
		})
	}
}
