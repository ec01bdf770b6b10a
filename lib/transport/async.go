// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults for AsyncConfig.
const (
	DefaultOutboxBytes  = 4 * 1024 * 1024
	DefaultDrainTimeout = 5 * time.Second
)

// AsyncConfig configures an AsyncSink.
type AsyncConfig struct {
	// MaxBytes caps the total size of queued datagrams. When a Send
	// would exceed it, the oldest datagrams are dropped. Zero means
	// DefaultOutboxBytes.
	MaxBytes int

	// SendTimeout bounds each write to the wrapped sink. Zero means
	// DefaultSendTimeout.
	SendTimeout time.Duration

	// DrainTimeout bounds the final pass over the outbox during
	// Close. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration

	// OnError receives every failed write. Called from the sender
	// goroutine; must not block.
	OnError func(error)

	Logger *slog.Logger
}

// AsyncSink decouples producers from the network. Send copies the
// datagram into a byte-bounded FIFO outbox and returns immediately; a
// single sender goroutine writes queued datagrams to the wrapped sink
// in order. A failed write is reported through OnError and the
// datagram is discarded. Nothing is retried.
//
// When the outbox is full the oldest datagrams are evicted, so a slow
// or dead collector costs memory up to MaxBytes and nothing more.
type AsyncSink struct {
	inner        Sink
	maxBytes     int
	sendTimeout  time.Duration
	drainTimeout time.Duration
	onError      func(error)
	logger       *slog.Logger

	mu        sync.Mutex
	entries   [][]byte
	totalSize int
	dropped   uint64
	sent      uint64
	failed    uint64
	closed    bool

	notify    chan struct{}
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewAsyncSink wraps inner and starts the sender goroutine. The
// AsyncSink owns inner from here on: Close closes it.
func NewAsyncSink(inner Sink, config AsyncConfig) *AsyncSink {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultOutboxBytes
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	sink := &AsyncSink{
		inner:        inner,
		maxBytes:     config.MaxBytes,
		sendTimeout:  config.SendTimeout,
		drainTimeout: config.DrainTimeout,
		onError:      config.OnError,
		logger:       config.Logger,
		notify:       make(chan struct{}, 1),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	go sink.run()
	return sink
}

// Send queues a copy of data for delivery. It never blocks on the
// network. Returns ErrClosed after Close and ErrOversized for a
// datagram larger than the whole outbox.
func (s *AsyncSink) Send(_ context.Context, data []byte) error {
	size := len(data)
	if size == 0 {
		return nil
	}
	if size > s.maxBytes {
		return &Error{Op: "enqueue", Err: fmt.Errorf("%w: %d > %d bytes", ErrOversized, size, s.maxBytes)}
	}
	entry := append([]byte(nil), data...)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	evicted := 0
	for s.totalSize+size > s.maxBytes && len(s.entries) > 0 {
		s.totalSize -= len(s.entries[0])
		s.entries[0] = nil
		s.entries = s.entries[1:]
		s.dropped++
		evicted++
	}
	s.entries = append(s.entries, entry)
	s.totalSize += size
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Warn("outbox full, dropped oldest datagrams", "dropped", evicted)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting datagrams, makes one bounded pass over the
// outbox, and closes the wrapped sink. Safe to call more than once;
// the wrapped sink is closed exactly once.
func (s *AsyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.closing)
		<-s.done
		s.closeErr = s.inner.Close()
	})
	return s.closeErr
}

// Dropped returns the number of datagrams evicted by overflow, plus
// any left unsent when the drain deadline expired.
func (s *AsyncSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Sent returns the number of datagrams written to the wrapped sink.
func (s *AsyncSink) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Failed returns the number of writes that returned an error.
func (s *AsyncSink) Failed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Len returns the number of queued datagrams.
func (s *AsyncSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for {
		select {
		case <-s.notify:
			s.sendQueued(context.Background())
		case <-s.closing:
			drainContext, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
			s.sendQueued(drainContext)
			cancel()
			s.abandonQueued()
			return
		}
	}
}

// sendQueued writes queued datagrams until the outbox is empty or
// parent expires.
func (s *AsyncSink) sendQueued(parent context.Context) {
	for parent.Err() == nil {
		data := s.pop()
		if data == nil {
			return
		}
		sendContext, cancel := context.WithTimeout(parent, s.sendTimeout)
		err := s.inner.Send(sendContext, data)
		cancel()

		s.mu.Lock()
		if err != nil {
			s.failed++
		} else {
			s.sent++
		}
		s.mu.Unlock()

		if err != nil && s.onError != nil {
			s.onError(err)
		}
	}
}

func (s *AsyncSink) pop() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	data := s.entries[0]
	s.entries[0] = nil
	s.entries = s.entries[1:]
	s.totalSize -= len(data)
	return data
}

// abandonQueued counts whatever the drain deadline left behind.
func (s *AsyncSink) abandonQueued() {
	s.mu.Lock()
	remaining := len(s.entries)
	s.dropped += uint64(remaining)
	s.entries = nil
	s.totalSize = 0
	s.mu.Unlock()

	if remaining > 0 {
		s.logger.Warn("drain deadline expired, abandoning queued datagrams", "remaining", remaining)
	}
}
