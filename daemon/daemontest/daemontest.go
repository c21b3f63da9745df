// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemontest runs an in-process keybridge daemon for tests of
// the daemon API and of clients that talk to it.
package daemontest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bureau-foundation/keybridge/daemon"
	"github.com/bureau-foundation/keybridge/lib/audit"
	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/credstore"
	"github.com/bureau-foundation/keybridge/lib/custody"
	"github.com/bureau-foundation/keybridge/lib/ratelimit"
	"github.com/bureau-foundation/keybridge/lib/testutil"
)

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// Options configures Start.
type Options struct {
	// Prompter decides consent requests. Defaults to Approve.
	Prompter consent.Prompter

	// Store is the custodian's credential store. Defaults to a fresh
	// in-memory store. Pass the same store to a second Start to
	// simulate a daemon restart.
	Store *credstore.Memory

	// RateLimiter is passed to the server. Nil disables limiting.
	RateLimiter *ratelimit.Limiter
}

// Harness is a running daemon.
type Harness struct {
	URL       string
	Store     *credstore.Memory
	Custodian *custody.Custodian
	Gate      *consent.Gate
	Audit     *audit.MemorySink
	Metrics   *daemon.Metrics
	Clock     *clock.FakeClock

	server *httptest.Server
}

// Approve is a prompter that approves everything.
var Approve = consent.PrompterFunc(func(context.Context, consent.Request) (bool, error) { return true, nil })

// Deny is a prompter that denies everything.
var Deny = consent.PrompterFunc(func(context.Context, consent.Request) (bool, error) { return false, nil })

// Start runs a daemon on an httptest server. It is stopped during test
// cleanup if Stop was not called.
func Start(t testing.TB, options Options) *Harness {
	t.Helper()

	prompter := options.Prompter
	if prompter == nil {
		prompter = Approve
	}
	store := options.Store
	if store == nil {
		store = credstore.NewMemory()
	}
	logger := testutil.Logger(t)
	fakeClock := clock.Fake(Epoch)
	auditSink := &audit.MemorySink{}

	var custodian *custody.Custodian
	metrics := daemon.NewMetrics(func() bool { return custodian != nil && custodian.Status().HasKeys })

	gate := consent.NewGate(consent.GateConfig{
		Mode:           consent.ModeAlways,
		PromptGenerate: true,
		Prompter:       prompter,
		Audit:          metrics.AuditSink(auditSink),
		Clock:          fakeClock,
		Logger:         logger,
	})

	custodian, err := custody.New(custody.Config{
		Store:  store,
		Gate:   gate,
		Clock:  fakeClock,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("custody.New: %v", err)
	}

	server := daemon.NewServer(daemon.ServerConfig{
		Custodian:   custodian,
		RateLimiter: options.RateLimiter,
		Metrics:     metrics,
		Version:     "test",
		Clock:       fakeClock,
		Logger:      logger,
	})

	harness := &Harness{
		Store:     store,
		Custodian: custodian,
		Gate:      gate,
		Audit:     auditSink,
		Metrics:   metrics,
		Clock:     fakeClock,
		server:    httptest.NewServer(server.Handler()),
	}
	harness.URL = harness.server.URL
	t.Cleanup(harness.Stop)
	return harness
}

// Stop shuts the daemon down. Clients see connection failures
// afterwards. Safe to call more than once.
func (h *Harness) Stop() {
	if h.server == nil {
		return
	}
	h.server.Close()
	h.server = nil
	h.Custodian.Close()
}

// Count returns how many audit records match operation and outcome. An
// empty outcome matches any.
func (h *Harness) Count(operation consent.Operation, outcome consent.Outcome) int {
	count := 0
	for _, record := range h.Audit.Records() {
		if record.Operation != string(operation) {
			continue
		}
		if outcome != "" && record.Outcome != string(outcome) {
			continue
		}
		count++
	}
	return count
}
