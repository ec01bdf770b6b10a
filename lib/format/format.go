// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"fmt"
	"math"

	"github.com/bureau-foundation/eventreporter/lib/event"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
)

// Capability is what a registry entry knows how to do with a group of
// events. The set is closed: a capability is either a [Formatter] or
// an [Aggregation].
type Capability interface {
	capability()
}

// Formatter converts one event into zero or more metric calls on the
// client. It is invoked once per event, in timestamp order. A returned
// error (or a panic) is isolated to that event.
type Formatter func(e event.Event, client statsd.MetricsClient) error

func (Formatter) capability() {}

// Aggregation reduces a whole batch of one event type to a fixed set
// of metrics, one per Aggregate.
type Aggregation []Aggregate

func (Aggregation) capability() {}

// Func reduces the numeric values of one field across a batch. values
// is never empty.
type Func func(values []float64) float64

// Aggregate names one batch-level metric: Func applied to Field
// (a dotted path) across every event in the batch.
type Aggregate struct {
	Name  string
	Field string
	Func  Func
	Type  statsd.Type
}

// Compute extracts Field from each event and reduces it. Events
// without a numeric value at Field do not contribute. If no event
// contributes, Compute returns an error and no metric.
func (a Aggregate) Compute(events []event.Event) (statsd.Metric, error) {
	values := make([]float64, 0, len(events))
	for _, e := range events {
		if value, ok := e.Number(a.Field); ok {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return statsd.Metric{}, fmt.Errorf("aggregate %s: no numeric %q in %d events", a.Name, a.Field, len(events))
	}
	return statsd.Metric{Name: a.Name, Value: a.Func(values), Type: a.Type}, nil
}

// Mean is the arithmetic mean rounded half away from zero.
//
// A single value is returned as-is, without rounding, so a one-event
// batch of 2.5 reports 2.5 while two or more samples always report an
// integer.
func Mean(values []float64) float64 {
	if len(values) == 1 {
		return values[0]
	}
	return math.Round(Sum(values) / float64(len(values)))
}

// Sum adds the values.
func Sum(values []float64) float64 {
	var total float64
	for _, value := range values {
		total += value
	}
	return total
}

// Ops is the aggregation for "ops" events: the mean of load.requests
// as the load_requests_mean gauge.
func Ops() Aggregation {
	return Aggregation{
		{Name: "load_requests_mean", Field: "load.requests", Func: Mean, Type: statsd.Gauge},
	}
}
