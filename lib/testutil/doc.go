// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the reporter
// packages.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// select-with-timeout pattern so individual tests never call
// time.After themselves. These are the only real wall-clock timeouts
// in the test suite; timer behaviour under test always runs on
// clock.Fake.
//
// [ListenUDP] starts a loopback UDP collector and exposes every
// received datagram on a channel, standing in for a statsd daemon or
// envelope collector in end-to-end tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
