// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/keybridge/lib/keyhandle"
	"github.com/bureau-foundation/keybridge/lib/schema"
	"github.com/bureau-foundation/keybridge/lib/watchdog"
)

var (
	// ErrNonExtractable means the local key cannot be exported, so
	// Migrate cannot move it. MigrateNewIdentity is the alternative.
	ErrNonExtractable = errors.New("client: local key is not extractable")

	// ErrDaemonUnavailable means a transition needed the daemon and
	// the probe failed. Wraps schema.ErrConnection.
	ErrDaemonUnavailable = fmt.Errorf("client: daemon unavailable: %w", schema.ErrConnection)

	// ErrIdentityMismatch means the daemon holds, or signed with, an
	// identity other than the one this surface expects.
	ErrIdentityMismatch = errors.New("client: daemon identity does not match")
)

// JournalMaxAge bounds how long a migration journal is considered
// live. Older journals are cleared by Reconcile without being trusted.
const JournalMaxAge = 24 * time.Hour

// Journal operation names.
const (
	journalMigrate            = "migrate"
	journalMigrateNewIdentity = "migrate-new-identity"
)

// MigrationResult describes a completed migration.
type MigrationResult struct {
	// DID is the identity the daemon now holds for this surface.
	DID string

	// AlreadyPresent is true when the daemon already held this
	// identity, typically because another surface migrated first.
	AlreadyPresent bool

	// NewIdentity is true when the daemon minted a fresh identity and
	// the old local identity was discarded.
	NewIdentity bool
}

// Migrate moves the local identity into the daemon and enters
// ModeBridge. The local key is wiped only after the daemon confirms
// it holds the same identity. On any failure before that point the
// local key and ModeLocal are left intact. In ModeBridge it makes no
// daemon call and returns the recorded DID with ErrAlreadyMigrated.
func (m *Manager) Migrate(ctx context.Context) (MigrationResult, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	key, err := m.migrationSource()
	if errors.Is(err, schema.ErrAlreadyMigrated) {
		return MigrationResult{DID: m.currentState().DaemonDID, AlreadyPresent: true}, err
	}
	if err != nil {
		return MigrationResult{}, err
	}
	if !key.Extractable {
		return MigrationResult{}, ErrNonExtractable
	}
	if _, err := m.probeOnce(ctx); err != nil {
		return MigrationResult{}, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	m.journal(watchdog.State{
		Operation:   journalMigrate,
		SourceKeyID: key.Identity.Fingerprint,
		ExpectedDID: key.Identity.DID,
		StartedAt:   m.clock.Now(),
	})

	passphrase, err := m.readPassphrase()
	if err != nil {
		m.clearJournal()
		return MigrationResult{}, err
	}
	handle, err := m.local.Open(passphrase)
	passphrase.Close()
	if err != nil {
		m.clearJournal()
		return MigrationResult{}, fmt.Errorf("client: migrate: %w", err)
	}
	exportable, ok := handle.(keyhandle.Exportable)
	if !ok {
		handle.Close()
		m.clearJournal()
		return MigrationResult{}, ErrNonExtractable
	}
	seed, err := exportable.Export()
	handle.Close()
	if err != nil {
		m.clearJournal()
		return MigrationResult{}, fmt.Errorf("client: migrate: %w", err)
	}
	_, importErr := m.daemon.ImportKey(ctx, seed, key.Identity.PublicKey, m.origin)
	seed.Close()

	result := MigrationResult{DID: key.Identity.DID}
	switch {
	case importErr == nil:
		held, err := m.daemon.PublicKey(ctx)
		if err != nil {
			// The import landed but cannot be confirmed. Keep the
			// journal; Reconcile finishes once the daemon answers.
			return MigrationResult{}, fmt.Errorf("client: migrate: confirming import: %w", err)
		}
		if held.DID != key.Identity.DID {
			m.clearJournal()
			return MigrationResult{}, fmt.Errorf("%w: daemon holds %s after import of %s", ErrIdentityMismatch, held.DID, key.Identity.DID)
		}

	case errors.Is(importErr, schema.ErrAlreadyExists):
		held, err := m.daemon.PublicKey(ctx)
		if err != nil {
			m.clearJournal()
			return MigrationResult{}, fmt.Errorf("client: migrate: %w", importErr)
		}
		if held.DID != key.Identity.DID {
			m.clearJournal()
			return MigrationResult{}, fmt.Errorf("%w: daemon already holds %s: %w", ErrIdentityMismatch, held.DID, importErr)
		}
		result.AlreadyPresent = true

	default:
		if !errors.Is(importErr, schema.ErrConnection) {
			m.clearJournal()
		}
		return MigrationResult{}, fmt.Errorf("client: migrate: %w", importErr)
	}

	if err := m.commit(key.Identity.DID); err != nil {
		return MigrationResult{}, err
	}
	m.logger.Info("migrated local identity to daemon",
		"did", key.Identity.DID,
		"already_present", result.AlreadyPresent,
	)
	return result, nil
}

// MigrateNewIdentity asks the daemon to generate a fresh identity,
// then discards the local one and enters ModeBridge. This is the only
// path for non-extractable local keys. Anything signed with the old
// identity no longer verifies against the new one.
func (m *Manager) MigrateNewIdentity(ctx context.Context) (MigrationResult, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	key, err := m.migrationSource()
	if errors.Is(err, schema.ErrAlreadyMigrated) {
		return MigrationResult{DID: m.currentState().DaemonDID, AlreadyPresent: true}, err
	}
	if err != nil {
		return MigrationResult{}, err
	}
	if _, err := m.probeOnce(ctx); err != nil {
		return MigrationResult{}, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	m.journal(watchdog.State{
		Operation:   journalMigrateNewIdentity,
		SourceKeyID: key.Identity.Fingerprint,
		StartedAt:   m.clock.Now(),
	})

	created, err := m.daemon.Generate(ctx, m.origin)
	if err != nil {
		if !errors.Is(err, schema.ErrConnection) {
			m.clearJournal()
		}
		return MigrationResult{}, fmt.Errorf("client: migrate with new identity: %w", err)
	}

	if err := m.commit(created.DID); err != nil {
		return MigrationResult{}, err
	}
	m.logger.Warn("replaced local identity with a new daemon identity",
		"old_did", key.Identity.DID,
		"new_did", created.DID,
	)
	return MigrationResult{DID: created.DID, NewIdentity: true}, nil
}

// migrationSource checks that the surface is in ModeLocal with a key.
func (m *Manager) migrationSource() (LocalKey, error) {
	switch m.Mode() {
	case ModeBridge:
		return LocalKey{}, fmt.Errorf("client: migrate: %w", schema.ErrAlreadyMigrated)
	case ModeNone:
		return LocalKey{}, fmt.Errorf("client: migrate: %w", ErrNoLocalKey)
	}
	key, err := m.local.Describe()
	if err != nil {
		return LocalKey{}, fmt.Errorf("client: migrate: %w", err)
	}
	return key, nil
}

// commit finishes a transition whose daemon side is confirmed: wipe
// the local key, then persist ModeBridge. A crash between the two
// leaves ModeLocal with no local key, which Reconcile resolves.
func (m *Manager) commit(did string) error {
	if m.afterImport != nil {
		if err := m.afterImport(); err != nil {
			return fmt.Errorf("client: migrate: %w", err)
		}
	}
	if err := m.local.Wipe(); err != nil {
		return err
	}
	if err := m.setState(State{Mode: ModeBridge, DaemonDID: did, MigratedAt: m.clock.Now()}); err != nil {
		return err
	}
	m.clearJournal()
	return nil
}

func (m *Manager) journal(state watchdog.State) {
	if err := watchdog.Write(m.journalPath, state); err != nil {
		m.logger.Warn("writing migration journal", "error", err)
	}
}

func (m *Manager) clearJournal() {
	if err := watchdog.Clear(m.journalPath); err != nil {
		m.logger.Warn("clearing migration journal", "error", err)
	}
}

// ReconcileAction is what Reconcile did.
type ReconcileAction string

const (
	// ReconcileNothing means state and storage already agreed.
	ReconcileNothing ReconcileAction = "nothing"

	// ReconcileCompleted means an interrupted migration was finished:
	// the daemon held the local identity and the local copy was wiped.
	ReconcileCompleted ReconcileAction = "completed-migration"

	// ReconcileAdopted means this surface had no local key and took
	// on the daemon's identity.
	ReconcileAdopted ReconcileAction = "adopted-daemon-identity"

	// ReconcileConflict means the local and daemon identities differ.
	// Nothing was changed; the user must choose.
	ReconcileConflict ReconcileAction = "conflict"

	// ReconcileRepaired means the state file was corrected to match
	// local storage without contacting the daemon's key.
	ReconcileRepaired ReconcileAction = "repaired-state"
)

// ReconcileResult describes a Reconcile run.
type ReconcileResult struct {
	Action ReconcileAction
	Mode   Mode
	DID    string

	// LocalDID and DaemonDID are set on ReconcileConflict.
	LocalDID  string
	DaemonDID string

	// Journal is the live migration journal found at startup, if any.
	Journal *watchdog.State
}

// Reconcile compares the state file, local storage and the daemon and
// settles any disagreement left by an interrupted transition. It never
// substitutes one identity for a different one.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileResult, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	var result ReconcileResult
	journal, live, err := watchdog.Check(m.journalPath, JournalMaxAge, m.clock.Now())
	if err != nil {
		m.logger.Warn("unreadable migration journal", "error", err)
	} else if live {
		result.Journal = &journal
		m.logger.Info("found migration journal",
			"operation", journal.Operation,
			"expected_did", journal.ExpectedDID,
			"started_at", journal.StartedAt,
		)
	}

	state := m.currentState()
	if state.Mode == ModeBridge {
		m.clearJournal()
		result.Action = ReconcileNothing
		result.Mode = ModeBridge
		result.DID = state.DaemonDID
		return result, nil
	}

	local, err := m.local.Describe()
	hasLocal := err == nil
	if err != nil && !errors.Is(err, ErrNoLocalKey) {
		return result, fmt.Errorf("client: reconcile: %w", err)
	}

	probe, err := m.probeOnce(ctx)
	if err != nil {
		if hasLocal && state.Mode == ModeNone {
			if err := m.setState(State{Mode: ModeLocal}); err != nil {
				return result, err
			}
		}
		result.Mode = m.Mode()
		return result, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	if !probe.hasKeys {
		result.Action = ReconcileNothing
		switch {
		case hasLocal && state.Mode != ModeLocal:
			if err := m.setState(State{Mode: ModeLocal}); err != nil {
				return result, err
			}
			result.Action = ReconcileRepaired
		case !hasLocal && state.Mode == ModeLocal:
			m.logger.Error("local identity is missing and the daemon holds no key; returning to no identity")
			if err := m.setState(State{Mode: ModeNone}); err != nil {
				return result, err
			}
			result.Action = ReconcileRepaired
		}
		if hasLocal {
			result.DID = local.Identity.DID
		}
		m.clearJournal()
		result.Mode = m.Mode()
		return result, nil
	}

	held, err := m.daemon.PublicKey(ctx)
	if err != nil {
		return result, fmt.Errorf("client: reconcile: reading daemon identity: %w", err)
	}

	switch {
	case hasLocal && held.DID == local.Identity.DID:
		if err := m.commit(held.DID); err != nil {
			return result, err
		}
		m.logger.Info("completed interrupted migration", "did", held.DID)
		result.Action = ReconcileCompleted
		result.DID = held.DID

	case hasLocal:
		if state.Mode != ModeLocal {
			if err := m.setState(State{Mode: ModeLocal}); err != nil {
				return result, err
			}
		}
		m.logger.Warn("local and daemon identities differ; leaving both in place",
			"local_did", local.Identity.DID,
			"daemon_did", held.DID,
		)
		m.clearJournal()
		result.Action = ReconcileConflict
		result.DID = local.Identity.DID
		result.LocalDID = local.Identity.DID
		result.DaemonDID = held.DID

	default:
		did, err := m.adopt(ctx)
		if err != nil {
			return result, err
		}
		m.clearJournal()
		result.Action = ReconcileAdopted
		result.DID = did
	}

	result.Mode = m.Mode()
	return result, nil
}

