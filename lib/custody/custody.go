// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/credstore"
	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/keyhandle"
	"github.com/bureau-foundation/keybridge/lib/schema"
	"github.com/bureau-foundation/keybridge/lib/secret"
)

// DefaultKeyName is the credential store entry holding the seed.
const DefaultKeyName = "daemon-ed25519-seed"

// Gate is the consent check a custodian requires before touching the
// key. *consent.Gate implements it.
type Gate interface {
	Require(ctx context.Context, operation consent.Operation, origin string, content []byte) error
}

// Config configures a Custodian.
type Config struct {
	Store  credstore.Store
	Gate   Gate
	Clock  clock.Clock
	Logger *slog.Logger

	// KeyName overrides DefaultKeyName.
	KeyName string
}

// Custodian owns the daemon's identity. Safe for concurrent use.
type Custodian struct {
	store   credstore.Store
	gate    Gate
	clock   clock.Clock
	logger  *slog.Logger
	keyName string

	mu     sync.Mutex
	record *keyhandle.Record
}

// Status is the custodian's current state.
type Status struct {
	HasKeys     bool
	Fingerprint string
}

// SignResult is a completed signature.
type SignResult struct {
	Signature   []byte
	Identity    identity.Identity
	Timestamp   time.Time
	ContentHash string
}

// New creates a custodian and loads any key already in the store. A
// store read failure other than "not found" is returned: starting
// empty would let a later generate overwrite a key that exists but was
// briefly unreadable.
func New(config Config) (*Custodian, error) {
	if config.Store == nil {
		panic("custody.New: Store is required")
	}
	if config.Gate == nil {
		panic("custody.New: Gate is required")
	}
	if config.Clock == nil {
		panic("custody.New: Clock is required")
	}
	if config.Logger == nil {
		panic("custody.New: Logger is required")
	}
	if config.KeyName == "" {
		config.KeyName = DefaultKeyName
	}

	custodian := &Custodian{
		store:   config.Store,
		gate:    config.Gate,
		clock:   config.Clock,
		logger:  config.Logger,
		keyName: config.KeyName,
	}

	seed, err := config.Store.Get(config.KeyName)
	if errors.Is(err, credstore.ErrNotFound) {
		custodian.logger.Info("custodian started without keys")
		return custodian, nil
	}
	if err != nil {
		return nil, fmt.Errorf("custody: loading key: %w", err)
	}
	defer seed.Close()

	record, err := custodian.adopt(seed)
	if err != nil {
		return nil, fmt.Errorf("custody: stored key is unusable: %w", err)
	}
	custodian.record = record
	custodian.logger.Info("custodian loaded key", "fingerprint", record.ID)
	return custodian, nil
}

// adopt wraps seed in a non-extractable handle. The seed buffer is not
// consumed.
func (c *Custodian) adopt(seed *secret.Buffer) (*keyhandle.Record, error) {
	handle, err := keyhandle.NonExtractable(seed)
	if err != nil {
		return nil, err
	}
	record, err := keyhandle.NewRecord(handle, keyhandle.CustodyDaemon, c.clock.Now())
	if err != nil {
		handle.Close()
		return nil, err
	}
	return &record, nil
}

// Status reports whether a key is held. Never prompts, never fails.
func (c *Custodian) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return Status{}
	}
	return Status{HasKeys: true, Fingerprint: c.record.ID}
}

// PublicKey returns the held identity, or schema.ErrNoKeys.
func (c *Custodian) PublicKey() (identity.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return identity.Identity{}, fmt.Errorf("custody: %w", schema.ErrNoKeys)
	}
	return identity.FromPublicKey(c.record.PublicKey)
}

func (c *Custodian) hasKeys() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record != nil
}

// Generate creates and persists a new keypair. It fails with
// schema.ErrAlreadyExists when a key is held; it never overwrites.
func (c *Custodian) Generate(ctx context.Context, origin string) (identity.Identity, error) {
	if c.hasKeys() {
		return identity.Identity{}, fmt.Errorf("custody: generate: %w", schema.ErrAlreadyExists)
	}
	if err := c.gate.Require(ctx, consent.OperationGenerate, origin, []byte("Generate a new signing identity")); err != nil {
		return identity.Identity{}, fmt.Errorf("custody: generate: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record != nil {
		return identity.Identity{}, fmt.Errorf("custody: generate: %w", schema.ErrAlreadyExists)
	}

	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("custody: generate: %w: %v", schema.ErrInternal, err)
	}
	defer seed.Close()
	if _, err := rand.Read(seed.Bytes()); err != nil {
		return identity.Identity{}, fmt.Errorf("custody: generate: %w: reading entropy: %v", schema.ErrInternal, err)
	}

	result, err := c.installLocked(seed)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("custody: generate: %w", err)
	}
	c.logger.Info("generated new identity", "fingerprint", result.Fingerprint, "did", result.DID, "origin", origin)
	return result, nil
}

// installLocked persists seed and makes it the held key. The store is
// written first so a persist failure leaves the custodian empty.
func (c *Custodian) installLocked(seed *secret.Buffer) (identity.Identity, error) {
	record, err := c.adopt(seed)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", schema.ErrInternal, err)
	}
	if err := c.store.Put(c.keyName, seed); err != nil {
		record.Handle.Close()
		return identity.Identity{}, fmt.Errorf("%w: persisting key: %v", schema.ErrInternal, err)
	}
	c.record = record
	return identity.FromPublicKey(record.PublicKey)
}

// Sign signs exactly content after consent. The origin is shown to the
// human and recorded in the audit trail.
func (c *Custodian) Sign(ctx context.Context, content []byte, origin string) (SignResult, error) {
	if strings.TrimSpace(origin) == "" {
		return SignResult{}, fmt.Errorf("custody: sign: %w: origin is required", schema.ErrValidation)
	}
	if len(content) == 0 {
		return SignResult{}, fmt.Errorf("custody: sign: %w: content is empty", schema.ErrValidation)
	}
	if !c.hasKeys() {
		return SignResult{}, fmt.Errorf("custody: sign: %w", schema.ErrNoKeys)
	}

	if err := c.gate.Require(ctx, consent.OperationSign, origin, content); err != nil {
		return SignResult{}, fmt.Errorf("custody: sign: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Deleted while the prompt was open.
	if c.record == nil {
		return SignResult{}, fmt.Errorf("custody: sign: %w", schema.ErrNoKeys)
	}

	signature, err := c.record.Handle.Sign(content)
	if err != nil {
		return SignResult{}, fmt.Errorf("custody: sign: %w: %v", schema.ErrInternal, err)
	}
	signer, err := identity.FromPublicKey(c.record.PublicKey)
	if err != nil {
		return SignResult{}, fmt.Errorf("custody: sign: %w: %v", schema.ErrInternal, err)
	}
	return SignResult{
		Signature:   signature,
		Identity:    signer,
		Timestamp:   c.clock.Now().UTC(),
		ContentHash: identity.ContentHash(content),
	}, nil
}

// ImportKey takes custody of an existing keypair. privateKey is a
// 32-byte seed or a 64-byte seed||public; publicKey must be the public
// half derived from it. privateKey is zeroed before ImportKey returns,
// whatever the outcome.
func (c *Custodian) ImportKey(ctx context.Context, privateKey, publicKey []byte, source string) (identity.Identity, error) {
	defer secret.Zero(privateKey)

	if c.hasKeys() {
		return identity.Identity{}, fmt.Errorf("custody: import: %w", schema.ErrAlreadyExists)
	}

	seed, claimed, err := validateImport(privateKey, publicKey)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("custody: import: %w", err)
	}
	defer seed.Close()

	if strings.TrimSpace(source) == "" {
		source = "unknown"
	}
	description := fmt.Sprintf("Import signing identity from %s\nDID: %s\nFingerprint: %s", source, claimed.DID, claimed.Fingerprint)
	if err := c.gate.Require(ctx, consent.OperationImportKey, source, []byte(description)); err != nil {
		return identity.Identity{}, fmt.Errorf("custody: import: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record != nil {
		return identity.Identity{}, fmt.Errorf("custody: import: %w", schema.ErrAlreadyExists)
	}
	result, err := c.installLocked(seed)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("custody: import: %w", err)
	}
	c.logger.Info("imported identity", "fingerprint", result.Fingerprint, "did", result.DID, "source", source)
	return result, nil
}

// validateImport checks key sizes and that publicKey is derived from
// the seed. It returns the seed in protected memory and the claimed
// identity. privateKey is not modified; the caller zeroes it.
func validateImport(privateKey, publicKey []byte) (*secret.Buffer, identity.Identity, error) {
	switch len(privateKey) {
	case ed25519.SeedSize, ed25519.PrivateKeySize:
	default:
		return nil, identity.Identity{}, fmt.Errorf("%w: private key is %d bytes, want %d or %d",
			schema.ErrValidation, len(privateKey), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, identity.Identity{}, fmt.Errorf("%w: public key is %d bytes, want %d",
			schema.ErrValidation, len(publicKey), ed25519.PublicKeySize)
	}

	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return nil, identity.Identity{}, fmt.Errorf("%w: %v", schema.ErrInternal, err)
	}
	copy(seed.Bytes(), privateKey[:ed25519.SeedSize])

	expanded := ed25519.NewKeyFromSeed(seed.Bytes())
	derived := ed25519.PublicKey(expanded[ed25519.SeedSize:])
	matches := derived.Equal(ed25519.PublicKey(publicKey))
	// A 64-byte key carries its own public half, which must agree too.
	if len(privateKey) == ed25519.PrivateKeySize && !derived.Equal(ed25519.PublicKey(privateKey[ed25519.SeedSize:])) {
		matches = false
	}
	claimed, identityErr := identity.FromPublicKey(derived)
	secret.Zero(expanded)

	if !matches {
		seed.Close()
		return nil, identity.Identity{}, fmt.Errorf("%w: public key does not match private key", schema.ErrValidation)
	}
	if identityErr != nil {
		seed.Close()
		return nil, identity.Identity{}, fmt.Errorf("%w: %v", schema.ErrInternal, identityErr)
	}
	return seed, claimed, nil
}

// DeleteKeys removes the held key from memory and the store after
// consent.
func (c *Custodian) DeleteKeys(ctx context.Context, origin string) error {
	c.mu.Lock()
	if c.record == nil {
		c.mu.Unlock()
		return fmt.Errorf("custody: delete: %w", schema.ErrNoKeys)
	}
	approved := c.record.ID
	c.mu.Unlock()

	description := fmt.Sprintf("Permanently delete signing identity %s", approved)
	if err := c.gate.Require(ctx, consent.OperationDeleteKeys, origin, []byte(description)); err != nil {
		return fmt.Errorf("custody: delete: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return fmt.Errorf("custody: delete: %w", schema.ErrNoKeys)
	}
	// The approval named a specific key; a replacement is not covered.
	if c.record.ID != approved {
		return fmt.Errorf("custody: delete: %w: key changed while awaiting approval", schema.ErrConsentDenied)
	}
	if err := c.store.Delete(c.keyName); err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return fmt.Errorf("custody: delete: %w: %v", schema.ErrInternal, err)
	}
	fingerprint := c.record.ID
	c.record.Handle.Close()
	c.record = nil
	c.logger.Warn("deleted identity", "fingerprint", fingerprint, "origin", origin)
	return nil
}

// Close releases the in-memory key. The stored key is untouched.
func (c *Custodian) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return nil
	}
	err := c.record.Handle.Close()
	c.record = nil
	return err
}
