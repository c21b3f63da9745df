// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/schema"
	"github.com/bureau-foundation/keybridge/lib/secret"
	"github.com/bureau-foundation/keybridge/lib/watchdog"
)

// Default probe cadence.
const (
	DefaultProbeInterval = 5 * time.Second
	DefaultProbeTimeout  = 2 * time.Second
)

// Daemon is the daemon API surface the manager uses.
// *bridgeclient.Client implements it.
type Daemon interface {
	Status(ctx context.Context) (schema.StatusResponse, error)
	PublicKey(ctx context.Context) (schema.PublicKeyResponse, error)
	Generate(ctx context.Context, origin string) (schema.PublicKeyResponse, error)
	Sign(ctx context.Context, content []byte, origin string) (schema.SignResponse, error)
	ImportKey(ctx context.Context, privateKey *secret.Buffer, publicKey []byte, source string) (schema.ImportKeyResponse, error)
}

// Gate approves local key operations. *consent.Gate implements it.
type Gate interface {
	Require(ctx context.Context, operation consent.Operation, origin string, content []byte) error
}

// PassphraseFunc supplies the local store passphrase. The caller of
// the function owns the returned buffer and closes it.
type PassphraseFunc func() (*secret.Buffer, error)

// Config configures a Manager.
type Config struct {
	Daemon Daemon

	// StateDir holds the state file, the local key envelope and the
	// migration journal. Created with mode 0700 if missing.
	StateDir string

	// Origin identifies this surface to the daemon and in local
	// consent prompts.
	Origin string

	// Gate approves local signing and local key creation.
	Gate Gate

	// Passphrase unlocks the local store. Required for any operation
	// that opens or creates the local key.
	Passphrase PassphraseFunc

	// KDF seals new local keys. Zero selects DefaultKDF.
	KDF KDFParams

	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager owns one client surface's signing mode. It signs locally in
// ModeLocal, forwards to the daemon in ModeBridge, and moves from
// local to bridge through Migrate or MigrateNewIdentity. There is no
// transition out of ModeBridge.
type Manager struct {
	daemon        Daemon
	local         *LocalStore
	gate          Gate
	passphrase    PassphraseFunc
	origin        string
	statePath     string
	journalPath   string
	probeInterval time.Duration
	probeTimeout  time.Duration
	clock         clock.Clock
	logger        *slog.Logger

	// transition serializes mode changes: migration, reconciliation,
	// adoption and local key creation.
	transition sync.Mutex

	mu    sync.Mutex
	state State
	probe probeResult

	degradedOnce sync.Once

	// afterImport runs after the daemon accepted the key and before
	// the local copy is wiped. Tests use it to interrupt a migration.
	afterImport func() error
}

type probeResult struct {
	reachable   bool
	hasKeys     bool
	fingerprint string
	checkedAt   time.Time
	err         error
}

// New loads the surface's state and returns a Manager. A surface with
// no state file but a local key on disk starts in ModeLocal.
func New(config Config) (*Manager, error) {
	if config.Daemon == nil {
		panic("client: Daemon is required")
	}
	if config.Gate == nil {
		panic("client: Gate is required")
	}
	if config.Clock == nil {
		panic("client: Clock is required")
	}
	if config.Logger == nil {
		panic("client: Logger is required")
	}
	if config.StateDir == "" {
		return nil, fmt.Errorf("client: state directory is required: %w", schema.ErrValidation)
	}
	if config.Origin == "" {
		return nil, fmt.Errorf("client: origin is required: %w", schema.ErrValidation)
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = DefaultProbeInterval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	if err := os.MkdirAll(config.StateDir, 0700); err != nil {
		return nil, fmt.Errorf("client: creating state directory: %w", err)
	}

	manager := &Manager{
		daemon:        config.Daemon,
		local:         NewLocalStore(LocalKeyPath(config.StateDir), config.KDF, config.Clock.Now),
		gate:          config.Gate,
		passphrase:    config.Passphrase,
		origin:        config.Origin,
		statePath:     StatePath(config.StateDir),
		journalPath:   JournalPath(config.StateDir),
		probeInterval: config.ProbeInterval,
		probeTimeout:  config.ProbeTimeout,
		clock:         config.Clock,
		logger:        config.Logger,
	}

	state, err := LoadState(manager.statePath)
	if err != nil {
		return nil, err
	}
	if state.Mode == ModeNone {
		exists, err := manager.local.Exists()
		if err != nil {
			return nil, fmt.Errorf("client: checking local key: %w", err)
		}
		if exists {
			state = State{Mode: ModeLocal}
			if err := SaveState(manager.statePath, state); err != nil {
				return nil, err
			}
		}
	}
	manager.state = state
	return manager, nil
}

// Local returns the surface's local key store.
func (m *Manager) Local() *LocalStore { return m.local }

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Mode
}

func (m *Manager) currentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// setState persists state and then publishes it.
func (m *Manager) setState(state State) error {
	if err := SaveState(m.statePath, state); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	return nil
}

// Report is a snapshot of the manager's view of itself and the
// daemon.
type Report struct {
	Mode Mode

	// DID is the identity this surface signs with: the local key in
	// ModeLocal, the recorded daemon identity in ModeBridge. Empty in
	// ModeNone.
	DID string

	// Reachable is the result of the last probe.
	Reachable bool

	// Degraded is true in ModeBridge while the daemon is unreachable.
	// Signing fails until it comes back.
	Degraded bool

	DaemonHasKeys        bool
	DaemonFingerprint    string
	LastProbe            time.Time
	LastProbeError       error
	LocalKeyExtractable  bool
	MigrationJournalSeen bool
}

// Status returns a snapshot report. It does not contact the daemon;
// call Probe first for a fresh view.
func (m *Manager) Status() Report {
	m.mu.Lock()
	state := m.state
	probe := m.probe
	m.mu.Unlock()

	report := Report{
		Mode:              state.Mode,
		Reachable:         probe.reachable,
		Degraded:          state.Mode == ModeBridge && !probe.reachable,
		DaemonHasKeys:     probe.hasKeys,
		DaemonFingerprint: probe.fingerprint,
		LastProbe:         probe.checkedAt,
		LastProbeError:    probe.err,
	}
	switch state.Mode {
	case ModeBridge:
		report.DID = state.DaemonDID
	case ModeLocal:
		if key, err := m.local.Describe(); err == nil {
			report.DID = key.Identity.DID
			report.LocalKeyExtractable = key.Extractable
		}
	}
	if _, err := watchdog.Read(m.journalPath); err == nil {
		report.MigrationJournalSeen = true
	}
	return report
}

// Run probes the daemon every probe interval until ctx is cancelled.
// It reconciles once before the first probe. Probe failures are
// recorded in Status, not returned.
func (m *Manager) Run(ctx context.Context) error {
	if _, err := m.Reconcile(ctx); err != nil && !errors.Is(err, schema.ErrConnection) {
		m.logger.Warn("startup reconciliation failed", "error", err)
	}

	ticker := m.clock.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Probe(ctx); err != nil {
				m.logger.Debug("daemon probe failed", "error", err)
			}
		}
	}
}

// Probe checks daemon reachability. A surface in ModeNone that finds
// a keyed daemon adopts its identity and enters ModeBridge.
func (m *Manager) Probe(ctx context.Context) error {
	probe, err := m.probeOnce(ctx)
	if err != nil {
		return err
	}
	if m.Mode() == ModeNone && probe.hasKeys {
		m.transition.Lock()
		defer m.transition.Unlock()
		if m.Mode() != ModeNone {
			return nil
		}
		if _, err := m.adopt(ctx); err != nil {
			return err
		}
	}
	return nil
}

// probeOnce calls GET /status with the probe timeout and records the
// result. Every failure wraps schema.ErrConnection.
func (m *Manager) probeOnce(ctx context.Context) (probeResult, error) {
	probeContext, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	status, err := m.daemon.Status(probeContext)
	if err != nil && !errors.Is(err, schema.ErrConnection) {
		err = fmt.Errorf("%w: %w", schema.ErrConnection, err)
	}

	result := probeResult{checkedAt: m.clock.Now(), err: err}
	if err == nil {
		result.reachable = true
		result.hasKeys = status.HasKeys
		result.fingerprint = status.PublicKeyFingerprint
	}

	m.mu.Lock()
	wasReachable := m.probe.reachable
	mode := m.state.Mode
	m.probe = result
	m.mu.Unlock()

	if mode == ModeBridge && wasReachable != result.reachable {
		if result.reachable {
			m.logger.Info("daemon reachable again")
		} else {
			m.logger.Warn("daemon unreachable, bridge signing unavailable", "error", err)
		}
	}
	return result, err
}

// adopt records the daemon's identity and enters ModeBridge. Called
// with transition held, only when there is no local key.
func (m *Manager) adopt(ctx context.Context) (string, error) {
	held, err := m.daemon.PublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("client: reading daemon identity: %w", err)
	}
	if err := m.setState(State{Mode: ModeBridge, DaemonDID: held.DID, MigratedAt: m.clock.Now()}); err != nil {
		return "", err
	}
	m.logger.Info("adopted daemon identity", "did", held.DID)
	return held.DID, nil
}

// Signature is a signature produced by either mode.
type Signature struct {
	Signature   []byte
	Identity    identity.Identity
	Timestamp   time.Time
	ContentHash string

	// Mode is the mode that produced the signature.
	Mode Mode
}

// Sign signs content with the current identity. In ModeBridge the
// daemon must be reachable and must still hold the recorded identity;
// there is no fallback to a local key.
func (m *Manager) Sign(ctx context.Context, content []byte) (Signature, error) {
	state := m.currentState()
	switch state.Mode {
	case ModeBridge:
		return m.signBridge(ctx, content, state.DaemonDID)
	case ModeLocal:
		return m.signLocal(ctx, content)
	default:
		return Signature{}, fmt.Errorf("client: sign: %w", schema.ErrNoKeys)
	}
}

func (m *Manager) signBridge(ctx context.Context, content []byte, expectedDID string) (Signature, error) {
	if _, err := m.probeOnce(ctx); err != nil {
		return Signature{}, fmt.Errorf("client: sign: %w", err)
	}
	response, err := m.daemon.Sign(ctx, content, m.origin)
	if err != nil {
		return Signature{}, fmt.Errorf("client: sign: %w", err)
	}

	publicKey, err := base64.StdEncoding.DecodeString(response.PublicKey)
	if err != nil {
		return Signature{}, fmt.Errorf("client: sign: daemon returned malformed public key: %w", schema.ErrInternal)
	}
	held, err := identity.FromPublicKey(publicKey)
	if err != nil {
		return Signature{}, fmt.Errorf("client: sign: daemon returned malformed public key: %w", schema.ErrInternal)
	}
	if held.DID != expectedDID {
		return Signature{}, fmt.Errorf("%w: signed by %s, expected %s", ErrIdentityMismatch, held.DID, expectedDID)
	}
	signature, err := base64.StdEncoding.DecodeString(response.Signature)
	if err != nil || !ed25519.Verify(held.PublicKey, content, signature) {
		return Signature{}, fmt.Errorf("client: sign: daemon signature does not verify: %w", schema.ErrInternal)
	}
	timestamp, err := time.Parse(time.RFC3339, response.Timestamp)
	if err != nil {
		return Signature{}, fmt.Errorf("client: sign: daemon returned malformed timestamp %q: %w", response.Timestamp, schema.ErrInternal)
	}

	return Signature{
		Signature:   signature,
		Identity:    held,
		Timestamp:   timestamp,
		ContentHash: response.ContentHash,
		Mode:        ModeBridge,
	}, nil
}

func (m *Manager) signLocal(ctx context.Context, content []byte) (Signature, error) {
	if err := m.gate.Require(ctx, consent.OperationSign, m.origin, content); err != nil {
		return Signature{}, fmt.Errorf("client: sign: %w", err)
	}

	passphrase, err := m.readPassphrase()
	if err != nil {
		return Signature{}, err
	}
	handle, err := m.local.Open(passphrase)
	passphrase.Close()
	if err != nil {
		return Signature{}, fmt.Errorf("client: sign: %w", err)
	}
	defer handle.Close()

	if handle.Extractable() {
		m.degradedOnce.Do(func() {
			m.logger.Warn("signing with an extractable local key; migrate to the daemon for stronger custody")
		})
	}

	signature, err := handle.Sign(content)
	if err != nil {
		return Signature{}, fmt.Errorf("client: sign: %w", err)
	}
	held, err := identity.FromPublicKey(handle.Public())
	if err != nil {
		return Signature{}, fmt.Errorf("client: sign: %w", err)
	}
	return Signature{
		Signature:   signature,
		Identity:    held,
		Timestamp:   m.clock.Now().UTC().Truncate(time.Second),
		ContentHash: identity.ContentHash(content),
		Mode:        ModeLocal,
	}, nil
}

func (m *Manager) readPassphrase() (*secret.Buffer, error) {
	if m.passphrase == nil {
		return nil, fmt.Errorf("client: no passphrase source configured: %w", schema.ErrValidation)
	}
	passphrase, err := m.passphrase()
	if err != nil {
		return nil, fmt.Errorf("client: reading passphrase: %w", err)
	}
	return passphrase, nil
}

// GenerateLocal creates a local identity. Only valid in ModeNone.
func (m *Manager) GenerateLocal(ctx context.Context, extractable bool) (Generated, error) {
	return m.createLocal(ctx, func(passphrase *secret.Buffer) (Generated, error) {
		return m.local.Generate(passphrase, extractable)
	})
}

// RestoreLocal recreates a local identity from its recovery phrase.
// Only valid in ModeNone.
func (m *Manager) RestoreLocal(ctx context.Context, mnemonic string) (Generated, error) {
	return m.createLocal(ctx, func(passphrase *secret.Buffer) (Generated, error) {
		return m.local.Restore(mnemonic, passphrase)
	})
}

func (m *Manager) createLocal(ctx context.Context, create func(*secret.Buffer) (Generated, error)) (Generated, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	switch m.Mode() {
	case ModeBridge:
		return Generated{}, fmt.Errorf("client: creating local key: %w", schema.ErrAlreadyMigrated)
	case ModeLocal:
		return Generated{}, fmt.Errorf("client: creating local key: %w", schema.ErrAlreadyExists)
	}
	if err := m.gate.Require(ctx, consent.OperationGenerate, m.origin, nil); err != nil {
		return Generated{}, fmt.Errorf("client: creating local key: %w", err)
	}

	passphrase, err := m.readPassphrase()
	if err != nil {
		return Generated{}, err
	}
	defer passphrase.Close()

	generated, err := create(passphrase)
	if err != nil {
		return Generated{}, err
	}
	if err := m.setState(State{Mode: ModeLocal}); err != nil {
		return Generated{}, err
	}
	m.logger.Info("local identity created",
		"did", generated.Identity.DID,
		"extractable", generated.Extractable,
	)
	return generated, nil
}
