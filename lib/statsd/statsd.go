// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statsd

import (
	"fmt"
	"strconv"
)

// MetricsClient is the per-metric transport handed to formatters.
// Each call is independent and independently fallible; a failure on
// one metric never affects the next.
type MetricsClient interface {
	Gauge(name string, value float64) error
	Timing(name string, value float64) error
	Counter(name string, value float64) error
	Close() error
}

// Type is a statsd metric type.
type Type uint8

const (
	Gauge Type = iota + 1
	Timing
	Counter
)

// Code returns the statsd wire type code: "g", "ms" or "c".
func (t Type) Code() string {
	switch t {
	case Gauge:
		return "g"
	case Timing:
		return "ms"
	case Counter:
		return "c"
	default:
		return ""
	}
}

func (t Type) String() string {
	switch t {
	case Gauge:
		return "gauge"
	case Timing:
		return "timing"
	case Counter:
		return "counter"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// ParseType accepts the names used in configuration and Lua
// formatters: "gauge", "timing", "counter", and the wire codes.
func ParseType(name string) (Type, error) {
	switch name {
	case "gauge", "g":
		return Gauge, nil
	case "timing", "ms":
		return Timing, nil
	case "counter", "count", "c":
		return Counter, nil
	default:
		return 0, fmt.Errorf("unknown metric type %q", name)
	}
}

// Metric is one formatted item ready to hand to a MetricsClient.
type Metric struct {
	Name  string
	Value float64
	Type  Type
}

// Emit invokes the client call matching m.Type.
func Emit(client MetricsClient, m Metric) error {
	switch m.Type {
	case Gauge:
		return client.Gauge(m.Name, m.Value)
	case Timing:
		return client.Timing(m.Name, m.Value)
	case Counter:
		return client.Counter(m.Name, m.Value)
	default:
		return fmt.Errorf("metric %q: unknown type %d", m.Name, m.Type)
	}
}

// FormatValue renders a value the way statsd expects: integral values
// without a decimal point, others in the shortest exact form.
func FormatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// Line renders one statsd line: <prefix><name>:<value>|<code>.
func Line(prefix string, m Metric) string {
	return prefix + m.Name + ":" + FormatValue(m.Value) + "|" + m.Type.Code()
}
