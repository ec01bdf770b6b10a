// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reporter batches monitoring events and ships them to a
// collector, best effort.
//
// A [Reporter] reads events from a channel into a [Buffer] and
// flushes on one of two policies: by count ([Config].Threshold) or on
// a timer ([Config].Interval). A flush groups the buffered events by
// type, orders each group by timestamp, and dispatches the result in
// one of two modes:
//
//   - envelope: one datagram holding {host, schema, timeStamp,
//     events}, encoded by lib/envelope.
//   - metrics: formatters and aggregations from lib/format, one statsd
//     metric per formatted item.
//
// Only event types registered in [Config].Formatters are dispatched.
// Nothing is retried and nothing is persisted: transport failures are
// logged, counted in [Stats], and dropped. A bounded outbox in front
// of the socket keeps a dead collector from ever blocking a flush.
//
// Lifecycle:
//
//	Idle --Init--> Initialized --Start--> Running --> Draining --> Stopped
//
// Running ends when the source channel closes, Stop is called, or the
// context passed to Start is cancelled. Draining stops the timer,
// takes in events already queued on the source, flushes, and closes
// the transport exactly once.
package reporter
