// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// FakeClock is a Clock that only moves when Advance is called. It is
// safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	armed   *sync.Cond
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	ticks   chan time.Time
	stopped bool
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	clock := &FakeClock{now: start}
	clock.armed = sync.NewCond(&clock.mu)
	return clock
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker registers a ticker whose first tick is due d from the
// current fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ticker := &fakeTicker{
		period: d,
		next:   c.now.Add(d),
		ticks:  make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ticker)
	c.armed.Broadcast()
	return &Ticker{
		C: ticker.ticks,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.stopped = true
		},
	}
}

// Advance moves the clock forward by d one tick boundary at a time.
// At each boundary Now reads the boundary and every ticker due there
// is offered that time; a ticker whose previous tick is still unread
// drops the new one, as time.Ticker does.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		due, at := c.nextDueLocked(target)
		if len(due) == 0 {
			break
		}
		c.now = at
		for _, ticker := range due {
			select {
			case ticker.ticks <- at:
			default:
			}
			ticker.next = ticker.next.Add(ticker.period)
		}
	}
	c.now = target
	c.mu.Unlock()
}

// nextDueLocked returns the live tickers due at the earliest boundary
// not after target.
func (c *FakeClock) nextDueLocked(target time.Time) ([]*fakeTicker, time.Time) {
	var due []*fakeTicker
	var at time.Time
	for _, ticker := range c.tickers {
		if ticker.stopped || ticker.next.After(target) {
			continue
		}
		switch {
		case len(due) == 0 || ticker.next.Before(at):
			due, at = []*fakeTicker{ticker}, ticker.next
		case ticker.next.Equal(at):
			due = append(due, ticker)
		}
	}
	return due, at
}

// WaitForTickers blocks until at least n tickers are running. Tests
// call it before Advance so a ticker armed by another goroutine is not
// missed.
func (c *FakeClock) WaitForTickers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.runningLocked() < n {
		c.armed.Wait()
	}
}

// Tickers returns the number of tickers not yet stopped.
func (c *FakeClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runningLocked()
}

func (c *FakeClock) runningLocked() int {
	running := 0
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			running++
		}
	}
	return running
}
