// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets timing-sensitive components run against either
// the wall clock or a deterministic fake.
//
// Two places in keybridge depend on elapsed time: the consent gate's
// decision deadline and the client's reachability probe interval.
// Both take a [Clock] in their config. Production passes [Real]; tests
// pass [Fake] and drive time with [FakeClock.Advance]:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	gate := consent.NewGate(consent.GateConfig{Clock: fake, ...})
//	go gate.Request(ctx, request)
//	fake.WaitForTimers(1)         // the deadline timer is armed
//	fake.Advance(consent.DefaultDeadline)
//
// WaitForTimers closes the race between a goroutine arming a timer
// and the test moving time forward.
package clock
