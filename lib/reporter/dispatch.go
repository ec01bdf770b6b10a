// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"errors"

	"github.com/bureau-foundation/eventreporter/lib/envelope"
	"github.com/bureau-foundation/eventreporter/lib/event"
	"github.com/bureau-foundation/eventreporter/lib/format"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
	"github.com/bureau-foundation/eventreporter/lib/transport"
)

// dispatcher delivers one flushed batch. Failures are reported to the
// reporter and never returned: a flush always completes.
type dispatcher interface {
	dispatch(groups event.Groups)
	close() error
}

// envelopeDispatcher sends one encoded envelope per flush.
type envelopeDispatcher struct {
	reporter *Reporter
	encoder  *envelope.Encoder
	sink     transport.Sink
}

func (d *envelopeDispatcher) dispatch(groups event.Groups) {
	r := d.reporter
	kept, dropped := r.registry.Filter(groups)
	r.stats.droppedUnregistered.Add(uint64(dropped))
	count := kept.Count()
	if count == 0 {
		r.logger.Debug("flush held no registered events", "dropped", dropped)
		return
	}
	r.stats.eventsFlushed.Add(uint64(count))

	datagram, err := d.encoder.Encode(envelope.New(r.host, r.schema, r.clock.Now(), kept))
	if err != nil {
		r.transportFailed(&transport.Error{Op: "encode", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
	defer cancel()
	if err := d.sink.Send(ctx, datagram); err != nil {
		var transportErr *transport.Error
		if !errors.As(err, &transportErr) {
			err = &transport.Error{Op: "send", Err: err}
		}
		r.transportFailed(err)
	}
}

func (d *envelopeDispatcher) close() error {
	return d.sink.Close()
}

// metricsDispatcher runs the format pipeline against a metrics client.
type metricsDispatcher struct {
	reporter *Reporter
	pipeline *format.Pipeline
	client   statsd.MetricsClient
}

func (d *metricsDispatcher) dispatch(groups event.Groups) {
	r := d.reporter
	report := d.pipeline.Run(groups, d.client)

	r.stats.droppedUnregistered.Add(uint64(report.Dropped))
	r.stats.eventsFlushed.Add(uint64(report.Events))
	r.stats.metricsSent.Add(uint64(report.MetricsSent))

	for _, failure := range report.FormatterErrors {
		r.stats.formatterErrors.Add(1)
		r.logger.Warn("formatter failed",
			"type", failure.Type,
			"index", failure.Index,
			"error", failure.Err,
		)
	}
	for _, failure := range report.MetricErrors {
		r.transportFailed(failure)
	}
}

func (d *metricsDispatcher) close() error {
	return d.client.Close()
}
