// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"sync"

	"github.com/bureau-foundation/eventreporter/lib/event"
)

// Buffer holds events awaiting a flush, in arrival order.
type Buffer struct {
	mu     sync.Mutex
	events []event.Event
}

// Append adds e at the end.
func (b *Buffer) Append(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Drain removes and returns every buffered event in arrival order.
func (b *Buffer) Drain() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.events
	b.events = nil
	return drained
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}
