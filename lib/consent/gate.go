// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/keybridge/lib/audit"
	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/schema"
)

// DefaultDeadline is how long a shown request waits for a decision.
const DefaultDeadline = 60 * time.Second

// Prompter asks a human to decide a request. Prompt must return
// promptly once ctx is done; the gate waits for it before showing the
// next request so two prompts never overlap.
type Prompter interface {
	Prompt(ctx context.Context, request Request) (approved bool, err error)
}

// GateConfig configures a Gate.
type GateConfig struct {
	// Mode selects which requests are prompted. Use ResolveMode to
	// produce it; the gate trusts whatever it is given.
	Mode Mode

	// Deadline bounds the wait for a decision once a request is shown.
	// Defaults to DefaultDeadline.
	Deadline time.Duration

	// PromptGenerate makes key generation a prompted operation. When
	// false, generation is auto-approved (and audited).
	PromptGenerate bool

	// TrustedOrigins are auto-approved in ModeUnrecognized.
	TrustedOrigins []string

	Prompter Prompter

	// Audit receives one record per resolved request. Optional.
	Audit audit.Sink

	Clock  clock.Clock
	Logger *slog.Logger
}

// Gate serializes consent requests. Safe for concurrent use.
type Gate struct {
	mode           Mode
	deadline       time.Duration
	promptGenerate bool
	trusted        map[string]bool
	prompter       Prompter
	audit          audit.Sink
	clock          clock.Clock
	logger         *slog.Logger

	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// NewGate creates a gate. Panics if Prompter, Clock, or Logger is nil.
func NewGate(config GateConfig) *Gate {
	if config.Prompter == nil {
		panic("consent.NewGate: Prompter is required")
	}
	if config.Clock == nil {
		panic("consent.NewGate: Clock is required")
	}
	if config.Logger == nil {
		panic("consent.NewGate: Logger is required")
	}
	if config.Mode == "" {
		config.Mode = ModeAlways
	}
	if config.Deadline <= 0 {
		config.Deadline = DefaultDeadline
	}

	trusted := make(map[string]bool, len(config.TrustedOrigins))
	for _, origin := range config.TrustedOrigins {
		trusted[origin] = true
	}

	return &Gate{
		mode:           config.Mode,
		deadline:       config.Deadline,
		promptGenerate: config.PromptGenerate,
		trusted:        trusted,
		prompter:       config.Prompter,
		audit:          config.Audit,
		clock:          config.Clock,
		logger:         config.Logger,
	}
}

// Mode returns the gate's mode.
func (g *Gate) Mode() Mode { return g.mode }

// Require asks for approval of operation on content from origin. It
// returns nil when approved and an error wrapping
// schema.ErrConsentDenied otherwise (denied, timed out, or cancelled).
// A prompter failure is treated as a denial.
func (g *Gate) Require(ctx context.Context, operation Operation, origin string, content []byte) error {
	requestID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("consent: generating request id: %w", err)
	}
	request := Request{
		ID:          requestID.String(),
		Operation:   operation,
		Origin:      origin,
		Preview:     Preview(content),
		ContentHash: identity.ContentHash(content),
		CreatedAt:   g.clock.Now(),
	}

	if g.autoApproves(request) {
		if g.mode == ModeNever {
			g.logger.Warn("consent auto-approved: mode is never",
				"request_id", request.ID,
				"operation", string(operation),
				"origin", origin,
				"content_hash", request.ContentHash,
			)
		}
		g.record(request, OutcomeAutoApproved)
		return nil
	}

	if err := g.acquire(ctx); err != nil {
		g.record(request, OutcomeCancelled)
		return fmt.Errorf("%w: %s cancelled while queued: %v", schema.ErrConsentDenied, operation, err)
	}
	defer g.release()

	outcome := g.decide(ctx, request)
	g.record(request, outcome)
	if outcome.Approved() {
		return nil
	}
	return fmt.Errorf("%w: %s %s", schema.ErrConsentDenied, operation, outcome)
}

func (g *Gate) autoApproves(request Request) bool {
	if request.Operation == OperationGenerate && !g.promptGenerate {
		return true
	}
	switch g.mode {
	case ModeNever:
		return true
	case ModeUnrecognized:
		return g.trusted[request.Origin]
	}
	return false
}

// decide shows request and waits for exactly one resolution. Called
// with the queue slot held.
func (g *Gate) decide(ctx context.Context, request Request) Outcome {
	request.Deadline = g.clock.Now().Add(g.deadline)
	timer := g.clock.NewTimer(g.deadline)
	defer timer.Stop()

	promptContext, cancelPrompt := context.WithCancel(ctx)
	defer cancelPrompt()

	type answer struct {
		approved bool
		err      error
	}
	answers := make(chan answer, 1)
	go func() {
		approved, err := g.prompter.Prompt(promptContext, request)
		answers <- answer{approved, err}
	}()

	var outcome Outcome
	select {
	case result := <-answers:
		switch {
		case result.err != nil:
			g.logger.Error("consent prompt failed",
				"request_id", request.ID,
				"operation", string(request.Operation),
				"error", result.err,
			)
			outcome = OutcomeDenied
		case result.approved:
			outcome = OutcomeApproved
		default:
			outcome = OutcomeDenied
		}
		return outcome
	case <-timer.C:
		outcome = OutcomeTimedOut
	case <-ctx.Done():
		outcome = OutcomeCancelled
	}

	// Withdraw the prompt and wait for the prompter to let go of the
	// terminal before the next request can be shown.
	cancelPrompt()
	<-answers
	return outcome
}

func (g *Gate) record(request Request, outcome Outcome) {
	attributes := []any{
		"request_id", request.ID,
		"operation", string(request.Operation),
		"origin", request.Origin,
		"content_hash", request.ContentHash,
		"outcome", string(outcome),
	}
	if outcome.Approved() {
		g.logger.Info("consent resolved", attributes...)
	} else {
		g.logger.Warn("consent resolved", attributes...)
	}

	if g.audit == nil {
		return
	}
	err := g.audit.Append(audit.Record{
		Timestamp:   g.clock.Now().UTC(),
		RequestID:   request.ID,
		Operation:   string(request.Operation),
		Origin:      request.Origin,
		ContentHash: request.ContentHash,
		Outcome:     string(outcome),
	})
	if err != nil {
		g.logger.Error("writing consent audit record", append(attributes, "error", err)...)
	}
}

// acquire takes the single prompt slot, queueing FIFO behind any
// holder.
func (g *Gate) acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	turn := make(chan struct{})
	g.waiters = append(g.waiters, turn)
	g.mu.Unlock()

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	for index, waiter := range g.waiters {
		if waiter == turn {
			g.waiters = append(g.waiters[:index], g.waiters[index+1:]...)
			g.mu.Unlock()
			return ctx.Err()
		}
	}
	g.mu.Unlock()
	// The slot was handed to us while ctx was being cancelled; pass it
	// on.
	g.release()
	return ctx.Err()
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) == 0 {
		g.busy = false
		return
	}
	next := g.waiters[0]
	g.waiters = g.waiters[1:]
	close(next)
}

// QueueLength returns the number of requests waiting behind the one
// being shown.
func (g *Gate) QueueLength() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

// IsDenied reports whether err is a consent denial.
func IsDenied(err error) bool {
	return errors.Is(err, schema.ErrConsentDenied)
}
