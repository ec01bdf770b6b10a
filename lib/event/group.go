// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"cmp"
	"slices"
)

// Groups maps an event-type key to the events of that type, ordered
// ascending by timestamp.
type Groups map[string][]Event

// Group partitions events by type and stably sorts each partition by
// timestamp. Events without a usable timestamp sort as timestamp 0,
// so they come first; ties (including all untimestamped events) keep
// arrival order.
//
// The input slice is not modified.
func Group(events []Event) Groups {
	groups := make(Groups)
	for _, e := range events {
		key := e.Type()
		groups[key] = append(groups[key], e)
	}
	for _, members := range groups {
		slices.SortStableFunc(members, func(a, b Event) int {
			return cmp.Compare(sortKey(a), sortKey(b))
		})
	}
	return groups
}

// Types returns the group keys in lexical order, for deterministic
// iteration.
func (g Groups) Types() []string {
	types := make([]string, 0, len(g))
	for key := range g {
		types = append(types, key)
	}
	slices.Sort(types)
	return types
}

// Count returns the total number of events across all groups.
func (g Groups) Count() int {
	total := 0
	for _, members := range g {
		total += len(members)
	}
	return total
}

func sortKey(e Event) float64 {
	timestamp, _ := e.Timestamp()
	return timestamp
}
