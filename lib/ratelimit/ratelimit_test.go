// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAllowBurstThenRefill(t *testing.T) {
	limiter := New(1, 2, 0)

	if !limiter.Allow("site-a", epoch) || !limiter.Allow("site-a", epoch) {
		t.Fatal("burst of 2 rejected")
	}
	if limiter.Allow("site-a", epoch) {
		t.Fatal("third event within burst window allowed")
	}
	if !limiter.Allow("site-a", epoch.Add(time.Second)) {
		t.Fatal("event after refill rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	limiter := New(1, 1, 0)
	if !limiter.Allow("site-a", epoch) {
		t.Fatal("site-a rejected")
	}
	if !limiter.Allow("site-b", epoch) {
		t.Fatal("site-b rejected after site-a exhausted its bucket")
	}
}

func TestEmptyKeySharesBucket(t *testing.T) {
	limiter := New(1, 1, 0)
	if !limiter.Allow("", epoch) {
		t.Fatal("first anonymous event rejected")
	}
	if limiter.Allow("  ", epoch) {
		t.Fatal("second anonymous event allowed; empty keys must not bypass the limit")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	limiter := New(0, 1, 0)
	if limiter != nil {
		t.Fatal("New(0, ...) returned a limiter")
	}
	for range 10 {
		if !limiter.Allow("x", epoch) {
			t.Fatal("nil limiter rejected an event")
		}
	}
}

func TestIdleEviction(t *testing.T) {
	limiter := New(100, 100, time.Minute)
	for index := range evictEvery - 1 {
		limiter.Allow(fmt.Sprintf("origin-%d", index), epoch)
	}
	if limiter.Len() != evictEvery-1 {
		t.Fatalf("Len = %d, want %d", limiter.Len(), evictEvery-1)
	}
	// The sweep runs on the evictEvery-th call.
	limiter.Allow("late", epoch.Add(2*time.Minute))
	if limiter.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", limiter.Len())
	}
}
