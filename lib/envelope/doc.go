// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope builds and encodes the single message a reporter
// sends per flush in envelope mode:
//
//	{"host": "...", "schema": "good-udp", "timeStamp": 1700000000000,
//	 "events": {"ops": [...], "request": [...]}}
//
// Event payloads are arbitrary and may contain reference cycles.
// [New] copies every event through [Decycle], which replaces each
// cycle with a "[Circular ~.events.<type>.<index>...]" placeholder,
// so encoding never recurses without bound.
//
// An [Encoder] serializes to JSON (default) or deterministic CBOR and
// may compress the result with LZ4 or zstd behind a small header.
package envelope
