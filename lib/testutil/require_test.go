// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// recorder captures Fatalf instead of stopping the test. Fatalf panics
// so the helper under test stops where a real test would.
type recorder struct {
	message string
}

type fatal struct{}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.message = fmt.Sprintf(format, args...)
	panic(fatal{})
}

func (r *recorder) run(body func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if _, ok := recovered.(fatal); !ok {
				panic(recovered)
			}
		}
	}()
	body()
}

var errDenied = errors.New("denied")

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}

	var r recorder
	r.run(func() { RequireReceive(&r, make(chan int), time.Millisecond, "waiting for %s", "prompt") })
	if !strings.Contains(r.message, "waiting for prompt") {
		t.Errorf("timeout message = %q", r.message)
	}

	closed := make(chan int)
	close(closed)
	r = recorder{}
	r.run(func() { RequireReceive(&r, closed, time.Second) })
	if !strings.Contains(r.message, "closed") {
		t.Errorf("closed-channel message = %q", r.message)
	}
}

func TestRequireResult(t *testing.T) {
	tests := []struct {
		name      string
		sent      error
		want      error
		wantFatal bool
	}{
		{"success", nil, nil, false},
		{"wrapped match", fmt.Errorf("sign: %w", errDenied), errDenied, false},
		{"unexpected error", errDenied, nil, true},
		{"wrong error", errors.New("other"), errDenied, true},
		{"missing error", nil, errDenied, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ch := make(chan error, 1)
			ch <- test.sent
			var r recorder
			r.run(func() { RequireResult(&r, ch, test.want, time.Second, "result") })
			if failed := r.message != ""; failed != test.wantFatal {
				t.Errorf("failed = %v (%q), want %v", failed, r.message, test.wantFatal)
			}
		})
	}
}

func TestRequireClosed(t *testing.T) {
	ready := make(chan struct{})
	close(ready)
	RequireClosed(t, ready, time.Second, "ready")

	var r recorder
	r.run(func() { RequireClosed(&r, make(chan struct{}), time.Millisecond, "never ready") })
	if !strings.Contains(r.message, "never ready") {
		t.Errorf("message = %q", r.message)
	}
}
