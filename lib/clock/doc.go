// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.AfterFunc directly. In production,
// Real() provides the standard library behavior. In tests, Fake()
// provides a deterministic clock that advances only when Advance is
// called.
//
// Negotiation timeouts, retry backoff, and keepalive tickers all go
// through this interface so that the orchestrator and gate test suites
// never sleep on the wall clock.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Orchestrator struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	o := NewOrchestrator(..., c)
//	// ... start goroutines ...
//	c.WaitForTimers(1)              // wait for the timeout to register
//	c.Advance(10 * time.Second)     // fire it deterministically
package clock
