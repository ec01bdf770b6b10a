// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the monitoring event record consumed by the
// reporter and the grouping step that precedes formatting.
//
// An [Event] is a loosely-typed map: producers attach whatever fields
// they like, and only the "event" type key and the optional
// "timestamp" are interpreted here. [Group] partitions a flushed batch
// by type and orders each partition by timestamp, preserving arrival
// order for equal timestamps because producers sharing a clock tick
// have no other disambiguator.
package event
