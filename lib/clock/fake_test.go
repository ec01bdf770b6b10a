// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func receiveTick(t *testing.T, ticker *Ticker) time.Time {
	t.Helper()
	select {
	case tick := <-ticker.C:
		return tick
	default:
		t.Fatal("no tick delivered")
		return time.Time{}
	}
}

func requireNoTick(t *testing.T, ticker *Ticker) {
	t.Helper()
	select {
	case tick := <-ticker.C:
		t.Fatalf("unexpected tick at %v", tick)
	default:
	}
}

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(1500 * time.Millisecond)
	if got, want := clock.Now(), epoch.Add(1500*time.Millisecond); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeTickerFiresAtBoundary(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(10 * time.Second)
	defer ticker.Stop()

	clock.Advance(9 * time.Second)
	requireNoTick(t, ticker)

	clock.Advance(time.Second)
	if tick := receiveTick(t, ticker); !tick.Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("tick = %v, want the boundary", tick)
	}
}

func TestFakeTickerCarriesBoundaryTimeAcrossLongAdvance(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	// Three boundaries pass; the channel holds only the first.
	clock.Advance(3500 * time.Millisecond)
	if tick := receiveTick(t, ticker); !tick.Equal(epoch.Add(time.Second)) {
		t.Errorf("tick = %v, want first boundary", tick)
	}
	requireNoTick(t, ticker)

	clock.Advance(500 * time.Millisecond)
	if tick := receiveTick(t, ticker); !tick.Equal(epoch.Add(4 * time.Second)) {
		t.Errorf("tick = %v, want 4s boundary", tick)
	}
	if got := clock.Now(); !got.Equal(epoch.Add(4 * time.Second)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestFakeTickersInterleave(t *testing.T) {
	clock := Fake(epoch)
	fast := clock.NewTicker(2 * time.Second)
	slow := clock.NewTicker(3 * time.Second)

	clock.Advance(2 * time.Second)
	receiveTick(t, fast)
	requireNoTick(t, slow)

	clock.Advance(time.Second)
	requireNoTick(t, fast)
	if tick := receiveTick(t, slow); !tick.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("slow tick = %v", tick)
	}
}

func TestFakeTickerStop(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	if clock.Tickers() != 0 {
		t.Fatalf("Tickers() = %d after Stop, want 0", clock.Tickers())
	}
	clock.Advance(5 * time.Second)
	requireNoTick(t, ticker)
}

func TestFakeTickerPanicsOnNonPositive(t *testing.T) {
	clock := Fake(epoch)
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	clock.NewTicker(0)
}

func TestWaitForTickers(t *testing.T) {
	clock := Fake(epoch)
	armed := make(chan *Ticker)
	go func() {
		armed <- clock.NewTicker(time.Second)
	}()

	clock.WaitForTickers(1)
	ticker := <-armed
	clock.Advance(time.Second)
	receiveTick(t, ticker)
}

func TestRealClockTicks(t *testing.T) {
	ticker := Real().NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C:
	case <-time.After(5 * time.Second):
		t.Fatal("real ticker never fired")
	}
}

func TestClocksImplementClock(t *testing.T) {
	var _ Clock = Fake(epoch)
	var _ Clock = Real()
}
