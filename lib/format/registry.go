// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"fmt"
	"slices"

	"github.com/bureau-foundation/eventreporter/lib/event"
)

// Registry maps event-type keys to capabilities. Build it completely
// before handing it to a reporter; it is not safe to Register while a
// reporter is running.
type Registry struct {
	capabilities map[string]Capability

	// releases free resources behind registered formatters, such as
	// Lua interpreters.
	releases []func()
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// DefaultRegistry returns a registry holding the built-in "ops"
// aggregation. Each call returns a fresh registry.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.capabilities["ops"] = Ops()
	return registry
}

// Register binds eventType to capability. An event type can be
// registered once.
func (r *Registry) Register(eventType string, capability Capability) error {
	if eventType == "" {
		return fmt.Errorf("registering capability: empty event type")
	}
	switch c := capability.(type) {
	case nil:
		return fmt.Errorf("registering %q: nil capability", eventType)
	case Formatter:
		if c == nil {
			return fmt.Errorf("registering %q: nil formatter", eventType)
		}
	case Aggregation:
		if len(c) == 0 {
			return fmt.Errorf("registering %q: empty aggregation", eventType)
		}
		for i, aggregate := range c {
			if aggregate.Name == "" || aggregate.Field == "" || aggregate.Func == nil || aggregate.Type.Code() == "" {
				return fmt.Errorf("registering %q: aggregate %d is incomplete", eventType, i)
			}
		}
	}
	if _, exists := r.capabilities[eventType]; exists {
		return fmt.Errorf("registering %q: already registered", eventType)
	}
	r.capabilities[eventType] = capability
	return nil
}

// Own makes release part of the registry's lifetime: Close calls it.
func (r *Registry) Own(release func()) {
	r.releases = append(r.releases, release)
}

// Close calls every function handed to Own, newest first, and forgets
// them. Aggregations stay usable after Close; formatters whose
// resources were released do not.
func (r *Registry) Close() {
	for i := len(r.releases) - 1; i >= 0; i-- {
		r.releases[i]()
	}
	r.releases = nil
}

// Lookup returns the capability for eventType.
func (r *Registry) Lookup(eventType string) (Capability, bool) {
	capability, ok := r.capabilities[eventType]
	return capability, ok
}

// Len returns the number of registered event types.
func (r *Registry) Len() int {
	return len(r.capabilities)
}

// Types returns the registered event types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.capabilities))
	for eventType := range r.capabilities {
		types = append(types, eventType)
	}
	slices.Sort(types)
	return types
}

// Filter returns the groups whose type is registered, and the number
// of events in groups that were left out.
func (r *Registry) Filter(groups event.Groups) (event.Groups, int) {
	kept := make(event.Groups, len(groups))
	dropped := 0
	for eventType, events := range groups {
		if _, ok := r.capabilities[eventType]; ok {
			kept[eventType] = events
			continue
		}
		dropped += len(events)
	}
	return kept, dropped
}
