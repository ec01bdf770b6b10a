// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"fmt"

	"github.com/bureau-foundation/eventreporter/lib/event"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
)

// FormatterError reports a formatter that failed on one event, or an
// aggregate that could not be computed for a batch. Index is the
// event's position within its sorted group, or -1 for aggregates.
type FormatterError struct {
	Type      string
	Index     int
	Aggregate string
	Err       error
}

func (e *FormatterError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("formatting %s batch (%s): %v", e.Type, e.Aggregate, e.Err)
	}
	return fmt.Sprintf("formatting %s event %d: %v", e.Type, e.Index, e.Err)
}

func (e *FormatterError) Unwrap() error { return e.Err }

// MetricError reports a metric call the client rejected.
type MetricError struct {
	Type   string
	Metric statsd.Metric
	Err    error
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("sending %s metric %s: %v", e.Type, e.Metric.Name, e.Err)
}

func (e *MetricError) Unwrap() error { return e.Err }

// Report summarises one pipeline run.
type Report struct {
	// Events is the number of events handed to a capability.
	Events int

	// Dropped is the number of events whose type has no capability.
	Dropped int

	// MetricsSent counts client calls that returned nil.
	MetricsSent int

	FormatterErrors []*FormatterError
	MetricErrors    []*MetricError
}

// Pipeline runs a registry's capabilities over grouped events.
type Pipeline struct {
	registry *Registry
}

// NewPipeline returns a pipeline over registry.
func NewPipeline(registry *Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// Run applies each registered capability to its group, in sorted
// type order, issuing metric calls on client. Nothing aborts the run:
// every failing event, aggregate and metric call is recorded in the
// report and the run moves on.
func (p *Pipeline) Run(groups event.Groups, client statsd.MetricsClient) Report {
	var report Report
	for _, eventType := range groups.Types() {
		events := groups[eventType]
		capability, ok := p.registry.Lookup(eventType)
		if !ok {
			report.Dropped += len(events)
			continue
		}
		report.Events += len(events)
		recorder := &recordingClient{inner: client, eventType: eventType, report: &report}

		switch c := capability.(type) {
		case Formatter:
			for index, e := range events {
				if err := invoke(c, e, recorder); err != nil {
					report.FormatterErrors = append(report.FormatterErrors, &FormatterError{
						Type: eventType, Index: index, Err: err,
					})
				}
			}
		case Aggregation:
			for _, aggregate := range c {
				metric, err := aggregate.Compute(events)
				if err != nil {
					report.FormatterErrors = append(report.FormatterErrors, &FormatterError{
						Type: eventType, Index: -1, Aggregate: aggregate.Name, Err: err,
					})
					continue
				}
				statsd.Emit(recorder, metric)
			}
		}
	}
	return report
}

// invoke calls formatter, converting a panic into an error.
func invoke(formatter Formatter, e event.Event, client statsd.MetricsClient) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("formatter panicked: %v", recovered)
		}
	}()
	return formatter(e, client)
}

// recordingClient counts each metric call into the run's report and
// still returns failures to the caller, so a formatter can see them.
type recordingClient struct {
	inner     statsd.MetricsClient
	eventType string
	report    *Report
}

func (r *recordingClient) Gauge(name string, value float64) error {
	return r.record(statsd.Metric{Name: name, Value: value, Type: statsd.Gauge}, r.inner.Gauge(name, value))
}

func (r *recordingClient) Timing(name string, value float64) error {
	return r.record(statsd.Metric{Name: name, Value: value, Type: statsd.Timing}, r.inner.Timing(name, value))
}

func (r *recordingClient) Counter(name string, value float64) error {
	return r.record(statsd.Metric{Name: name, Value: value, Type: statsd.Counter}, r.inner.Counter(name, value))
}

// Close is a no-op: formatters do not own the client.
func (r *recordingClient) Close() error { return nil }

func (r *recordingClient) record(metric statsd.Metric, err error) error {
	if err != nil {
		r.report.MetricErrors = append(r.report.MetricErrors, &MetricError{
			Type: r.eventType, Metric: metric, Err: err,
		})
		return err
	}
	r.report.MetricsSent++
	return nil
}
