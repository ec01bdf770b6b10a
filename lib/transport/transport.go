// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
)

// Sink delivers one datagram per Send. Implementations give no
// delivery guarantee: a nil error means the bytes were handed to the
// network (or queued for it), not that a collector received them.
type Sink interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport: sink closed")

	// ErrOversized is returned when a single datagram exceeds the
	// outbox capacity.
	ErrOversized = errors.New("transport: datagram exceeds outbox capacity")
)

// Error describes a failed transport operation. The reporter logs and
// counts these; it never retries.
type Error struct {
	// Op is the failed operation: "dial", "send", "enqueue", "close".
	Op string

	// Addr is the remote address, when known.
	Addr string

	Err error
}

func (e *Error) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
