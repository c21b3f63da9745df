// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/keyhandle"
	"github.com/bureau-foundation/keybridge/lib/schema"
	"github.com/bureau-foundation/keybridge/lib/secret"
	"github.com/bureau-foundation/keybridge/lib/statefile"
)

var (
	// ErrNoLocalKey means the local store is empty.
	ErrNoLocalKey = errors.New("client: no local key")

	// ErrWrongPassphrase means the envelope did not decrypt. A
	// corrupted envelope is indistinguishable.
	ErrWrongPassphrase = errors.New("client: wrong passphrase or corrupted local key")
)

const envelopeVersion = 1

// KDFParams are the Argon2id parameters sealing the local key.
type KDFParams struct {
	Time    uint32 `cbor:"time"`
	Memory  uint32 `cbor:"memory_kib"`
	Threads uint8  `cbor:"threads"`
}

// DefaultKDF follows the RFC 9106 second recommended option.
var DefaultKDF = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

// envelope is the on-disk local key. The public key is stored in the
// clear so the identity can be read without the passphrase.
type envelope struct {
	Version     int       `cbor:"version"`
	Algorithm   string    `cbor:"algorithm"`
	PublicKey   []byte    `cbor:"public_key"`
	Extractable bool      `cbor:"extractable"`
	CreatedAt   time.Time `cbor:"created_at"`
	KDF         KDFParams `cbor:"kdf"`
	Salt        []byte    `cbor:"salt"`
	Nonce       []byte    `cbor:"nonce"`
	Ciphertext  []byte    `cbor:"ciphertext"`
}

// LocalKey describes the stored key without opening it.
type LocalKey struct {
	Identity    identity.Identity
	Extractable bool
	CreatedAt   time.Time
}

// Generated is the result of creating a local identity.
type Generated struct {
	LocalKey

	// Mnemonic is the 24-word BIP-39 recovery phrase for the seed.
	// Empty for non-extractable keys, which cannot be recovered.
	Mnemonic string
}

// LocalStore keeps one Ed25519 seed encrypted under a passphrase
// (Argon2id, XChaCha20-Poly1305). Extractable keys open as
// keyhandle.Exportable and can be migrated; non-extractable keys open
// as a sign-only handle.
type LocalStore struct {
	path string
	kdf  KDFParams
	now  func() time.Time
}

// NewLocalStore returns a store for the envelope at path. A zero kdf
// selects DefaultKDF.
func NewLocalStore(path string, kdf KDFParams, now func() time.Time) *LocalStore {
	if kdf == (KDFParams{}) {
		kdf = DefaultKDF
	}
	if now == nil {
		now = time.Now
	}
	return &LocalStore{path: path, kdf: kdf, now: now}
}

// Path returns the envelope path.
func (s *LocalStore) Path() string { return s.path }

// Exists reports whether a key is stored.
func (s *LocalStore) Exists() (bool, error) {
	return statefile.Exists(s.path)
}

func (s *LocalStore) read() (envelope, error) {
	var stored envelope
	if err := statefile.ReadCBOR(s.path, &stored); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return envelope{}, ErrNoLocalKey
		}
		return envelope{}, fmt.Errorf("client: reading local key: %w", err)
	}
	if stored.Version != envelopeVersion || stored.Algorithm != keyhandle.AlgorithmEd25519 {
		return envelope{}, fmt.Errorf("client: local key has unsupported version %d / algorithm %q", stored.Version, stored.Algorithm)
	}
	return stored, nil
}

// Describe returns the stored key's identity without the passphrase.
func (s *LocalStore) Describe() (LocalKey, error) {
	stored, err := s.read()
	if err != nil {
		return LocalKey{}, err
	}
	held, err := identity.FromPublicKey(stored.PublicKey)
	if err != nil {
		return LocalKey{}, fmt.Errorf("client: local key: %w", err)
	}
	return LocalKey{Identity: held, Extractable: stored.Extractable, CreatedAt: stored.CreatedAt}, nil
}

// Generate creates and stores a fresh identity. It refuses to replace
// an existing key.
func (s *LocalStore) Generate(passphrase *secret.Buffer, extractable bool) (Generated, error) {
	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return Generated{}, err
	}
	defer seed.Close()
	if _, err := rand.Read(seed.Bytes()); err != nil {
		return Generated{}, fmt.Errorf("client: reading entropy: %w", err)
	}
	return s.install(seed, passphrase, extractable)
}

// Restore recreates an extractable identity from a recovery phrase.
func (s *LocalStore) Restore(mnemonic string, passphrase *secret.Buffer) (Generated, error) {
	mnemonic = strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return Generated{}, fmt.Errorf("%w: recovery phrase: %v", schema.ErrValidation, err)
	}
	defer secret.Zero(entropy)
	if len(entropy) != ed25519.SeedSize {
		return Generated{}, fmt.Errorf("%w: recovery phrase encodes %d bytes, want %d (24 words)", schema.ErrValidation, len(entropy), ed25519.SeedSize)
	}
	seed, err := secret.NewFromBytes(entropy)
	if err != nil {
		return Generated{}, err
	}
	defer seed.Close()
	return s.install(seed, passphrase, true)
}

func (s *LocalStore) install(seed, passphrase *secret.Buffer, extractable bool) (Generated, error) {
	if passphrase == nil || passphrase.Len() == 0 {
		return Generated{}, fmt.Errorf("%w: a passphrase is required", schema.ErrValidation)
	}
	exists, err := s.Exists()
	if err != nil {
		return Generated{}, fmt.Errorf("client: checking local key: %w", err)
	}
	if exists {
		return Generated{}, fmt.Errorf("client: local key: %w", schema.ErrAlreadyExists)
	}

	expanded := ed25519.NewKeyFromSeed(seed.Bytes())
	publicKey := append([]byte(nil), expanded[ed25519.SeedSize:]...)
	secret.Zero(expanded)

	stored := envelope{
		Version:     envelopeVersion,
		Algorithm:   keyhandle.AlgorithmEd25519,
		PublicKey:   publicKey,
		Extractable: extractable,
		CreatedAt:   s.now().UTC().Truncate(time.Second),
		KDF:         s.kdf,
		Salt:        make([]byte, 16),
		Nonce:       make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(stored.Salt); err != nil {
		return Generated{}, fmt.Errorf("client: reading entropy: %w", err)
	}
	if _, err := rand.Read(stored.Nonce); err != nil {
		return Generated{}, fmt.Errorf("client: reading entropy: %w", err)
	}

	aead, err := s.cipher(passphrase, stored)
	if err != nil {
		return Generated{}, err
	}
	stored.Ciphertext = aead.Seal(nil, stored.Nonce, seed.Bytes(), publicKey)

	if err := statefile.WriteCBOR(s.path, stored, 0600); err != nil {
		return Generated{}, fmt.Errorf("client: writing local key: %w", err)
	}

	held, err := identity.FromPublicKey(publicKey)
	if err != nil {
		return Generated{}, err
	}
	result := Generated{LocalKey: LocalKey{Identity: held, Extractable: extractable, CreatedAt: stored.CreatedAt}}
	if extractable {
		result.Mnemonic, err = bip39.NewMnemonic(seed.Bytes())
		if err != nil {
			return Generated{}, fmt.Errorf("client: encoding recovery phrase: %w", err)
		}
	}
	return result, nil
}

// cipher derives the envelope key from passphrase.
func (s *LocalStore) cipher(passphrase *secret.Buffer, stored envelope) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase.Bytes(), stored.Salt, stored.KDF.Time, stored.KDF.Memory, stored.KDF.Threads, chacha20poly1305.KeySize)
	defer secret.Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return aead, nil
}

// Open decrypts the stored key. Extractable keys return a
// keyhandle.Exportable; the caller closes the handle.
func (s *LocalStore) Open(passphrase *secret.Buffer) (keyhandle.Handle, error) {
	stored, err := s.read()
	if err != nil {
		return nil, err
	}
	if passphrase == nil {
		return nil, ErrWrongPassphrase
	}
	aead, err := s.cipher(passphrase, stored)
	if err != nil {
		return nil, err
	}
	if len(stored.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}

	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	defer seed.Close()
	plaintext, err := aead.Open(seed.Bytes()[:0], stored.Nonce, stored.Ciphertext, stored.PublicKey)
	if err != nil || len(plaintext) != ed25519.SeedSize {
		return nil, ErrWrongPassphrase
	}

	var handle keyhandle.Handle
	if stored.Extractable {
		handle, err = keyhandle.FromSeed(seed)
	} else {
		handle, err = keyhandle.NonExtractable(seed)
	}
	if err != nil {
		return nil, fmt.Errorf("client: opening local key: %w", err)
	}
	if !ed25519.PublicKey(stored.PublicKey).Equal(handle.Public()) {
		handle.Close()
		return nil, ErrWrongPassphrase
	}
	return handle, nil
}

// Wipe overwrites the envelope with zeros, syncs, and removes it. A
// missing envelope is not an error.
func (s *LocalStore) Wipe() error {
	file, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("client: wiping local key: %w", err)
	}
	info, err := file.Stat()
	if err == nil {
		_, err = file.Write(make([]byte, info.Size()))
	}
	if err == nil {
		err = file.Sync()
	}
	closeErr := file.Close()
	if err != nil {
		return fmt.Errorf("client: wiping local key: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("client: wiping local key: %w", closeErr)
	}
	if err := statefile.Remove(s.path); err != nil {
		return fmt.Errorf("client: wiping local key: %w", err)
	}
	return nil
}
