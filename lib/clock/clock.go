// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package that keybridge components
// use. Code that needs deadlines or periodic work takes a Clock rather
// than calling time directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a Timer that delivers once on C after d. A
	// non-positive d fires immediately.
	NewTimer(d time.Duration) *Timer

	// NewTicker returns a Ticker that delivers on C every d. Panics
	// if d is not positive.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a one-shot event. Stop it when the event is no longer
// wanted so fake clocks stop counting it as pending.
type Timer struct {
	C <-chan time.Time

	stop func() bool
}

// Stop cancels the timer. Returns false if it already fired or was
// stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C. C has capacity 1; ticks that
// arrive while the consumer is busy are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
