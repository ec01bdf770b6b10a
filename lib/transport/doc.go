// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries encoded telemetry to a remote collector.
//
// Everything here is best-effort. A [Sink] accepts one datagram per
// Send and gives no acknowledgement. [UDPSink] writes straight to a
// connected UDP socket with a bounded write deadline. [AsyncSink]
// wraps any Sink with a byte-bounded, drop-oldest outbox and a single
// sender goroutine so that producers never wait on the network; write
// failures are reported through a callback and the datagram is
// discarded. [WriterSink] prints datagrams for dry runs.
//
// Data flow in the reporter:
//
//	flush → envelope / statsd line → AsyncSink outbox → sender goroutine → UDPSink → collector
package transport
