// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"strings"
	"time"
)

// Well-known event fields.
const (
	// TypeField holds the event-type key used for grouping and
	// formatter lookup.
	TypeField = "event"

	// TimestampField holds the optional numeric event time.
	TimestampField = "timestamp"
)

// Event is a single monitoring record: operational stats, a request
// log, an error, or an arbitrary log line. Only the "event" key is
// interpreted by the reporter; every other field is opaque payload
// handed to formatters and envelope encoding.
//
// An Event must not be modified after it has been handed to a
// reporter.
type Event map[string]any

// Type returns the event-type key, or "" if the event has none or it
// is not a string.
func (e Event) Type() string {
	value, _ := e[TypeField].(string)
	return value
}

// Timestamp returns the event's numeric timestamp and whether one was
// present. Integers, floats, json.Number, and time.Time (as Unix
// milliseconds) are accepted; anything else is treated as absent.
func (e Event) Timestamp() (float64, bool) {
	value, present := e[TimestampField]
	if !present {
		return 0, false
	}
	if instant, ok := value.(time.Time); ok {
		return float64(instant.UnixMilli()), true
	}
	return Float(value)
}

// Lookup resolves a dotted path ("load.requests") through nested
// maps. It returns false if any segment is missing or an intermediate
// value is not a map.
func (e Event) Lookup(path string) (any, bool) {
	var current any = map[string]any(e)
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case Event:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		default:
			return nil, false
		}
	}
	return current, true
}

// Number resolves a dotted path and converts the value to float64.
func (e Event) Number(path string) (float64, bool) {
	value, ok := e.Lookup(path)
	if !ok {
		return 0, false
	}
	return Float(value)
}

// Float converts any Go numeric kind or json.Number to float64.
func Float(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case float32:
		return float64(number), true
	case int:
		return float64(number), true
	case int8:
		return float64(number), true
	case int16:
		return float64(number), true
	case int32:
		return float64(number), true
	case int64:
		return float64(number), true
	case uint:
		return float64(number), true
	case uint8:
		return float64(number), true
	case uint16:
		return float64(number), true
	case uint32:
		return float64(number), true
	case uint64:
		return float64(number), true
	case json.Number:
		parsed, err := number.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
