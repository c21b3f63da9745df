// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyhandle defines opaque private-key handles. Callers sign
// through a [Handle] and never see key bytes unless the handle also
// implements [Exportable].
//
// Two kinds exist:
//
//   - Extractable Ed25519 handles hold the private key in a
//     [secret.Buffer] and can export the 32-byte seed. These are the
//     "degraded" local form and the only form that can be migrated
//     to the daemon byte-for-byte.
//   - Opaque handles sign through a [crypto.Signer] and never expose
//     key material. [NonExtractable] builds one from a seed for
//     client surfaces that want platform-style non-extractable keys.
package keyhandle

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/secret"
)

// AlgorithmEd25519 is the only supported signing algorithm.
const AlgorithmEd25519 = "Ed25519"

var (
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("keyhandle: handle is closed")

	// ErrInvalidSeed is returned when seed material has the wrong length.
	ErrInvalidSeed = errors.New("keyhandle: seed must be 32 bytes")
)

// Handle signs with a private key it does not reveal.
type Handle interface {
	// Public returns the Ed25519 public key.
	Public() ed25519.PublicKey

	// Sign returns an Ed25519 signature over exactly message.
	Sign(message []byte) ([]byte, error)

	// Extractable reports whether the handle implements Exportable.
	Extractable() bool

	// Close releases key material. Idempotent.
	Close() error
}

// Exportable is a Handle whose key bytes can leave it.
type Exportable interface {
	Handle

	// Export returns a copy of the 32-byte seed in a new buffer the
	// caller must close.
	Export() (*secret.Buffer, error)
}

// Generate creates a fresh Ed25519 key. With extractable false the
// returned handle is opaque.
func Generate(extractable bool) (Handle, error) {
	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	defer seed.Close()
	if _, err := rand.Read(seed.Bytes()); err != nil {
		return nil, fmt.Errorf("keyhandle: reading entropy: %w", err)
	}
	if extractable {
		return FromSeed(seed)
	}
	return NonExtractable(seed)
}

// FromSeed builds an extractable handle from a 32-byte seed. The seed
// buffer is copied, not consumed; the caller still closes it.
func FromSeed(seed *secret.Buffer) (Exportable, error) {
	privateKey, err := expandSeed(seed)
	if err != nil {
		return nil, err
	}
	return &ed25519Handle{
		privateKey: privateKey,
		publicKey:  publicOf(privateKey),
	}, nil
}

// NonExtractable builds an opaque handle from a 32-byte seed. The seed
// buffer is copied, not consumed.
func NonExtractable(seed *secret.Buffer) (Handle, error) {
	privateKey, err := expandSeed(seed)
	if err != nil {
		return nil, err
	}
	inner := &ed25519Handle{privateKey: privateKey, publicKey: publicOf(privateKey)}
	return &opaqueHandle{signer: inner, closer: inner.Close, publicKey: inner.publicKey}, nil
}

// FromSigner wraps an external signer (hardware token, platform
// keystore) as an opaque handle. The signer's public key must be
// Ed25519.
func FromSigner(signer crypto.Signer) (Handle, error) {
	publicKey, ok := signer.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keyhandle: signer public key is %T, want ed25519.PublicKey", signer.Public())
	}
	return &opaqueHandle{signer: signerAdapter{signer}, publicKey: publicKey}, nil
}

// expandSeed derives the 64-byte Ed25519 private key into protected
// memory and scrubs the heap intermediate.
func expandSeed(seed *secret.Buffer) (*secret.Buffer, error) {
	if seed.Len() != ed25519.SeedSize {
		return nil, ErrInvalidSeed
	}
	expanded := ed25519.NewKeyFromSeed(seed.Bytes())
	privateKey, err := secret.NewFromBytes(expanded)
	if err != nil {
		return nil, err
	}
	return privateKey, nil
}

func publicOf(privateKey *secret.Buffer) ed25519.PublicKey {
	publicKey := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(publicKey, privateKey.Bytes()[ed25519.SeedSize:])
	return publicKey
}

type ed25519Handle struct {
	privateKey *secret.Buffer
	publicKey  ed25519.PublicKey
}

func (h *ed25519Handle) Public() ed25519.PublicKey { return h.publicKey }

func (h *ed25519Handle) Extractable() bool { return true }

func (h *ed25519Handle) Sign(message []byte) ([]byte, error) {
	if h.privateKey.Closed() {
		return nil, ErrClosed
	}
	// ed25519.Sign caches derived state keyed by a weak pointer to the
	// key, which must therefore be Go heap memory, not the mmap'd buffer.
	privateKey := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(privateKey, h.privateKey.Bytes())
	defer secret.Zero(privateKey)
	return ed25519.Sign(privateKey, message), nil
}

func (h *ed25519Handle) Export() (*secret.Buffer, error) {
	if h.privateKey.Closed() {
		return nil, ErrClosed
	}
	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	copy(seed.Bytes(), h.privateKey.Bytes()[:ed25519.SeedSize])
	return seed, nil
}

func (h *ed25519Handle) Close() error { return h.privateKey.Close() }

type messageSigner interface {
	Sign(message []byte) ([]byte, error)
}

type opaqueHandle struct {
	signer    messageSigner
	closer    func() error
	publicKey ed25519.PublicKey
}

func (h *opaqueHandle) Public() ed25519.PublicKey { return h.publicKey }

func (h *opaqueHandle) Extractable() bool { return false }

func (h *opaqueHandle) Sign(message []byte) ([]byte, error) { return h.signer.Sign(message) }

func (h *opaqueHandle) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer()
}

type signerAdapter struct {
	signer crypto.Signer
}

func (a signerAdapter) Sign(message []byte) ([]byte, error) {
	// Pure Ed25519 signs the unhashed message.
	return a.signer.Sign(rand.Reader, message, crypto.Hash(0))
}

// Custody names where a key record lives.
type Custody string

const (
	CustodyLocal  Custody = "local"
	CustodyDaemon Custody = "daemon"
)

// Record describes a held key without exposing it.
type Record struct {
	// ID is the public key fingerprint.
	ID        string
	PublicKey ed25519.PublicKey
	Handle    Handle
	Algorithm string
	CreatedAt time.Time
	Custody   Custody
}

// NewRecord describes handle. The record shares the handle; closing
// either closes both.
func NewRecord(handle Handle, custody Custody, createdAt time.Time) (Record, error) {
	id, err := identity.FromPublicKey(handle.Public())
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        id.Fingerprint,
		PublicKey: id.PublicKey,
		Handle:    handle,
		Algorithm: AlgorithmEd25519,
		CreatedAt: createdAt,
		Custody:   custody,
	}, nil
}
