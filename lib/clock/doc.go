// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the wall clock behind the reporter's flush
// ticker and envelope timestamps.
//
// Production code passes Real(). Tests pass Fake(), which only moves
// when Advance is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	r, _ := reporter.New(reporter.Config{Interval: time.Second, Clock: fake, ...})
//	// ... Init, Start ...
//	fake.WaitForTickers(1)     // the run loop has armed its ticker
//	fake.Advance(time.Second)  // exactly one tick is delivered
package clock
