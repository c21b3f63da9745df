// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consent

import (
	"context"
	"log/slog"
	"sync"
)

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, request Request) (bool, error)

func (f PrompterFunc) Prompt(ctx context.Context, request Request) (bool, error) {
	return f(ctx, request)
}

// DenyAll denies every request. Daemons without a controlling terminal
// use it so gated operations fail closed instead of hanging until the
// deadline.
type DenyAll struct {
	Logger *slog.Logger
}

func (d DenyAll) Prompt(ctx context.Context, request Request) (bool, error) {
	if d.Logger != nil {
		d.Logger.Warn("consent request denied: no interactive prompter",
			"request_id", request.ID,
			"summary", request.Summary(),
		)
	}
	return false, nil
}

// Scripted hands each prompt to a test, which answers it through
// Answer. It records how many prompts were ever open at once.
type Scripted struct {
	requests chan Request
	answers  chan bool

	mu            sync.Mutex
	open          int
	maxConcurrent int
	shown         int
}

func NewScripted() *Scripted {
	return &Scripted{
		requests: make(chan Request),
		answers:  make(chan bool),
	}
}

// Requests delivers each shown request.
func (s *Scripted) Requests() <-chan Request { return s.requests }

// Answer decides the currently shown request. Blocks until a prompt is
// waiting.
func (s *Scripted) Answer(approved bool) { s.answers <- approved }

func (s *Scripted) Prompt(ctx context.Context, request Request) (bool, error) {
	s.mu.Lock()
	s.open++
	s.shown++
	if s.open > s.maxConcurrent {
		s.maxConcurrent = s.open
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.open--
		s.mu.Unlock()
	}()

	select {
	case s.requests <- request:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case approved := <-s.answers:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// MaxConcurrent returns the largest number of simultaneously open
// prompts seen.
func (s *Scripted) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent
}

// Shown returns how many prompts were opened.
func (s *Scripted) Shown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}
