// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"fmt"
	"time"
)

// TB is the subset of testing.TB the channel helpers use.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed first.
//
//	request := testutil.RequireReceive(t, prompter.Requests(), 5*time.Second, "waiting for prompt")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock hang guard
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed with nothing received", describe(msgAndArgs))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", describe(msgAndArgs), timeout)
	}
	panic("unreachable")
}

// RequireClosed fails the test unless ch is closed (or delivers)
// within timeout. Readiness channels signal by closing.
//
//	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock hang guard
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: not closed within %v", describe(msgAndArgs), timeout)
	}
}

// RequireResult receives the result of an operation started in a
// goroutine (a consent decision, a signing call) and checks it against
// want with errors.Is. A nil want requires success.
//
//	testutil.RequireResult(t, result, schema.ErrConsentDenied, 5*time.Second, "queued request")
func RequireResult(t TB, ch <-chan error, want error, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	err := RequireReceive(t, ch, timeout, msgAndArgs...)
	switch {
	case want == nil && err != nil:
		t.Fatalf("%s: unexpected error: %v", describe(msgAndArgs), err)
	case want != nil && !errors.Is(err, want):
		t.Fatalf("%s: error = %v, want %v", describe(msgAndArgs), err, want)
	}
}

// describe renders the optional message: a plain value, or a format
// string and its arguments.
func describe(msgAndArgs []any) string {
	switch {
	case len(msgAndArgs) == 0:
		return "channel wait"
	case len(msgAndArgs) == 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
