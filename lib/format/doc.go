// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package format turns grouped events into metric calls.
//
// A [Registry] maps event types to a [Capability]: either a per-event
// [Formatter] or a batch-level [Aggregation]. The [Pipeline] walks
// grouped events in sorted type order and applies whichever capability
// is registered. Events whose type has none are dropped and counted,
// never reported as errors.
//
// Failures stay local. A formatter error or panic affects only its
// event; a failed metric call affects only that metric. Both are
// collected into the run's [Report].
package format
