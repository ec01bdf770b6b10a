// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/eventreporter/lib/clock"
	"github.com/bureau-foundation/eventreporter/lib/envelope"
	"github.com/bureau-foundation/eventreporter/lib/event"
	"github.com/bureau-foundation/eventreporter/lib/format"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
	"github.com/bureau-foundation/eventreporter/lib/testutil"
)

const (
	receiveTimeout = 5 * time.Second
	quietPeriod    = 50 * time.Millisecond
)

// fakeSink records datagrams on a channel so tests can wait for them.
type fakeSink struct {
	datagrams chan []byte
	err       error
	closes    atomic.Int32
}

func newFakeSink() *fakeSink {
	return &fakeSink{datagrams: make(chan []byte, 64)}
}

func (s *fakeSink) Send(_ context.Context, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.datagrams <- append([]byte(nil), data...)
	return nil
}

func (s *fakeSink) Close() error {
	s.closes.Add(1)
	return nil
}

// fakeClient records metric calls on a channel.
type fakeClient struct {
	metrics chan statsd.Metric
	closes  atomic.Int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{metrics: make(chan statsd.Metric, 64)}
}

func (c *fakeClient) send(m statsd.Metric) error {
	c.metrics <- m
	return nil
}

func (c *fakeClient) Gauge(name string, value float64) error {
	return c.send(statsd.Metric{Name: name, Value: value, Type: statsd.Gauge})
}

func (c *fakeClient) Timing(name string, value float64) error {
	return c.send(statsd.Metric{Name: name, Value: value, Type: statsd.Timing})
}

func (c *fakeClient) Counter(name string, value float64) error {
	return c.send(statsd.Metric{Name: name, Value: value, Type: statsd.Counter})
}

func (c *fakeClient) Close() error {
	c.closes.Add(1)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envelopeConfig(sink *fakeSink) Config {
	return Config{
		Mode:   ModeEnvelope,
		Host:   "test-host",
		Sink:   sink,
		Logger: discardLogger(),
	}
}

func metricsConfig(client *fakeClient) Config {
	return Config{
		Mode:   ModeMetrics,
		Host:   "test-host",
		Client: client,
		Logger: discardLogger(),
	}
}

// startReporter creates, initializes and starts a reporter reading
// from source. The reporter is stopped at cleanup.
func startReporter(t *testing.T, config Config, source <-chan event.Event) *Reporter {
	t.Helper()
	r, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Init(source); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

func opsEvent(timestamp, requests float64) event.Event {
	return event.Event{
		"event":     "ops",
		"timestamp": timestamp,
		"load":      map[string]any{"requests": requests},
	}
}

func decode(t *testing.T, datagram []byte) envelope.Envelope {
	t.Helper()
	decoded, err := envelope.Decode(datagram, envelope.JSON, envelope.CompressionNone)
	if err != nil {
		t.Fatalf("decoding envelope %s: %v", datagram, err)
	}
	return decoded
}

// eventually polls condition until it holds or the receive timeout
// passes.
func eventually(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(receiveTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

func requests(t *testing.T, e any) float64 {
	t.Helper()
	value, ok := event.Event(e.(map[string]any)).Number("load.requests")
	if !ok {
		t.Fatalf("event %v has no load.requests", e)
	}
	return value
}

func TestThresholdTrigger(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 3
	source := make(chan event.Event)
	startReporter(t, config, source)

	source <- opsEvent(1, 1)
	source <- opsEvent(2, 2)
	testutil.RequireNoReceive(t, sink.datagrams, quietPeriod, "flush before threshold")

	source <- opsEvent(3, 3)
	datagram := testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for threshold flush")
	if got := len(decode(t, datagram).Events["ops"]); got != 3 {
		t.Fatalf("flushed %d events, want 3", got)
	}

	source <- opsEvent(4, 4)
	testutil.RequireNoReceive(t, sink.datagrams, quietPeriod, "buffer was not cleared by the flush")
}

func TestImmediateMode(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 0
	source := make(chan event.Event)
	startReporter(t, config, source)

	for i := range 3 {
		source <- opsEvent(float64(i), float64(i))
		datagram := testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for flush %d", i)
		ops := decode(t, datagram).Events["ops"]
		if len(ops) != 1 || requests(t, ops[0]) != float64(i) {
			t.Fatalf("flush %d carried %v", i, ops)
		}
	}
}

func TestIntervalTrigger(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	fake := clock.Fake(start)
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Interval = 10 * time.Second
	config.Clock = fake
	source := make(chan event.Event)
	r := startReporter(t, config, source)
	fake.WaitForTickers(1)

	// Appends never flush in interval mode, whatever the count.
	for i := range 5 {
		source <- opsEvent(float64(i), 1)
	}
	testutil.RequireNoReceive(t, sink.datagrams, quietPeriod, "flush before the interval elapsed")

	fake.Advance(10 * time.Second)
	datagram := testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for interval flush")
	decoded := decode(t, datagram)
	if len(decoded.Events["ops"]) != 5 {
		t.Fatalf("flushed %d events, want 5", len(decoded.Events["ops"]))
	}
	if decoded.TimeStamp != start.Add(10*time.Second).UnixMilli() {
		t.Errorf("timeStamp = %d, want the clock's time", decoded.TimeStamp)
	}

	// A tick over an empty buffer is an observable no-op.
	fake.Advance(10 * time.Second)
	eventually(t, "empty flush", func() bool { return r.Stats().EmptyFlushes == 1 })
	testutil.RequireNoReceive(t, sink.datagrams, quietPeriod, "datagram for empty flush")
}

func TestGroupingAndOrdering(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 6
	registry := format.DefaultRegistry()
	registry.Register("request", format.Formatter(func(event.Event, statsd.MetricsClient) error { return nil }))
	config.Formatters = registry
	source := make(chan event.Event)
	startReporter(t, config, source)

	source <- event.Event{"event": "ops", "timestamp": 30, "id": "ops-30"}
	source <- event.Event{"event": "request", "timestamp": 5, "id": "req-5"}
	source <- event.Event{"event": "ops", "timestamp": 10, "id": "ops-10a"}
	source <- event.Event{"event": "ops", "timestamp": 20, "id": "ops-20"}
	source <- event.Event{"event": "request", "timestamp": 1, "id": "req-1"}
	source <- event.Event{"event": "ops", "timestamp": 10, "id": "ops-10b"}

	decoded := decode(t, testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for flush"))
	ids := func(events []any) []string {
		var out []string
		for _, e := range events {
			out = append(out, e.(map[string]any)["id"].(string))
		}
		return out
	}
	if got := strings.Join(ids(decoded.Events["ops"]), ","); got != "ops-10a,ops-10b,ops-20,ops-30" {
		t.Errorf("ops order = %s", got)
	}
	if got := strings.Join(ids(decoded.Events["request"]), ","); got != "req-1,req-5" {
		t.Errorf("request order = %s", got)
	}
}

func TestDrainOnEndOfStream(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 100
	source := make(chan event.Event)
	r := startReporter(t, config, source)

	source <- opsEvent(1, 1)
	source <- opsEvent(2, 2)
	source <- opsEvent(3, 3)
	close(source)

	testutil.RequireClosed(t, r.Done(), receiveTimeout, "waiting for stop at end of stream")
	datagram := testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for final flush")
	if got := len(decode(t, datagram).Events["ops"]); got != 3 {
		t.Fatalf("final flush carried %d events, want 3", got)
	}
	if r.State() != Stopped {
		t.Errorf("state = %v, want stopped", r.State())
	}
	if sink.closes.Load() != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes.Load())
	}
}

func TestDrainOnStop(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 100
	source := make(chan event.Event, 8)
	r := startReporter(t, config, source)

	// Whether the loop has read these yet or not, they belong to the
	// final flush.
	source <- opsEvent(1, 1)
	source <- opsEvent(2, 2)
	source <- opsEvent(3, 3)
	r.Stop()
	r.Stop()

	datagram := testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for final flush")
	if got := len(decode(t, datagram).Events["ops"]); got != 3 {
		t.Fatalf("final flush carried %d events, want 3", got)
	}
	if sink.closes.Load() != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes.Load())
	}
	if r.State() != Stopped {
		t.Errorf("state = %v, want stopped", r.State())
	}
	if err := r.ForceFlush(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("ForceFlush after stop = %v, want ErrStopped", err)
	}
}

func TestStopWithEmptyBufferSendsNothing(t *testing.T) {
	sink := newFakeSink()
	r := startReporter(t, envelopeConfig(sink), make(chan event.Event))
	r.Stop()
	testutil.RequireNoReceive(t, sink.datagrams, quietPeriod, "datagram for empty final flush")
	if r.Stats().EmptyFlushes != 1 {
		t.Errorf("EmptyFlushes = %d, want 1", r.Stats().EmptyFlushes)
	}
}

func TestForceFlushOfEmptyBufferSendsNothing(t *testing.T) {
	sink := newFakeSink()
	r := startReporter(t, envelopeConfig(sink), make(chan event.Event))
	if err := r.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	testutil.RequireNoReceive(t, sink.datagrams, quietPeriod, "datagram for empty forced flush")
	if stats := r.Stats(); stats.Flushes != 1 || stats.EmptyFlushes != 1 {
		t.Errorf("flushes/empty = %d/%d, want 1/1", stats.Flushes, stats.EmptyFlushes)
	}
}

func TestStopReturnsWhileProducerKeepsSourceFull(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 1 << 30
	source := make(chan event.Event, 8)
	r := startReporter(t, config, source)

	producerDone := make(chan struct{})
	defer close(producerDone)
	go func() {
		for {
			select {
			case source <- opsEvent(1, 1):
			case <-producerDone:
				return
			}
		}
	}()
	eventually(t, "events buffered", func() bool { return r.buffer.Len() > 0 })

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	testutil.RequireClosed(t, stopped, receiveTimeout, "Stop while the producer refills the source")
	testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for final flush")
}

func TestStopClosesRegistry(t *testing.T) {
	registry := format.DefaultRegistry()
	var releases atomic.Int32
	registry.Own(func() { releases.Add(1) })
	config := envelopeConfig(newFakeSink())
	config.Formatters = registry

	r := startReporter(t, config, make(chan event.Event))
	r.Stop()
	r.Stop()
	if releases.Load() != 1 {
		t.Errorf("registry released %d times, want 1", releases.Load())
	}
}

func TestStopBeforeStart(t *testing.T) {
	sink := newFakeSink()
	r, err := New(envelopeConfig(sink))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Init(make(chan event.Event)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	r.Stop()
	r.Stop()

	testutil.RequireClosed(t, r.Done(), receiveTimeout, "Done after early stop")
	if sink.closes.Load() != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes.Load())
	}
	if r.Stats().Flushes != 0 {
		t.Errorf("Flushes = %d, want 0", r.Stats().Flushes)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}
	if err := r.Init(nil); !errors.Is(err, ErrStopped) {
		t.Errorf("Init after Stop = %v, want ErrStopped", err)
	}
}

func TestContextCancellationDrains(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 100
	r, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	source := make(chan event.Event)
	r.Init(source)
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	source <- opsEvent(1, 1)
	cancel()

	testutil.RequireClosed(t, r.Done(), receiveTimeout, "waiting for stop after cancel")
	testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for final flush")
	r.Stop()
	if sink.closes.Load() != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closes.Load())
	}
}

func TestLifecycleMisuse(t *testing.T) {
	r, err := New(envelopeConfig(newFakeSink()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Stop()

	if r.State() != Idle {
		t.Fatalf("state = %v, want idle", r.State())
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Start before Init = %v, want ErrNotInitialized", err)
	}
	if err := r.ForceFlush(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ForceFlush before Start = %v, want ErrNotRunning", err)
	}
	if err := r.Init(make(chan event.Event)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Init(make(chan event.Event)); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init = %v, want ErrAlreadyInitialized", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if r.State() != Running {
		t.Errorf("state = %v, want running", r.State())
	}
}

func TestForceFlush(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 100
	source := make(chan event.Event)
	r := startReporter(t, config, source)

	source <- opsEvent(1, 1)
	source <- opsEvent(2, 2)
	if err := r.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	datagram := testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for forced flush")
	if got := len(decode(t, datagram).Events["ops"]); got != 2 {
		t.Fatalf("forced flush carried %d events, want 2", got)
	}
}

func TestEnvelopeModeSkipsUnregisteredTypes(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	config.Threshold = 3
	source := make(chan event.Event)
	r := startReporter(t, config, source)

	source <- event.Event{"event": "log", "message": "one"}
	source <- opsEvent(1, 1)
	source <- event.Event{"event": "log", "message": "two"}

	decoded := decode(t, testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for flush"))
	if _, ok := decoded.Events["log"]; ok {
		t.Errorf("unregistered type in envelope: %v", decoded.Events)
	}
	if len(decoded.Events["ops"]) != 1 {
		t.Errorf("ops = %v", decoded.Events["ops"])
	}
	if got := r.Stats().DroppedUnregistered; got != 2 {
		t.Errorf("DroppedUnregistered = %d, want 2", got)
	}

	// A flush of only unregistered events sends nothing.
	for range 3 {
		source <- event.Event{"event": "log"}
	}
	testutil.RequireNoReceive(t, sink.datagrams, quietPeriod, "datagram for unregistered-only flush")
}

func TestCircularPayloadIsSafe(t *testing.T) {
	sink := newFakeSink()
	config := envelopeConfig(sink)
	source := make(chan event.Event)
	startReporter(t, config, source)

	e := opsEvent(1, 5)
	e["self"] = map[string]any(e)
	source <- e

	datagram := testutil.RequireReceive(t, sink.datagrams, receiveTimeout, "waiting for flush")
	if !strings.Contains(string(datagram), `"self":"[Circular ~.events.ops.0]"`) {
		t.Fatalf("datagram = %s", datagram)
	}
}

func TestTransportFailureIsCountedAndDropped(t *testing.T) {
	sink := newFakeSink()
	sink.err = errors.New("network unreachable")
	config := envelopeConfig(sink)
	source := make(chan event.Event)
	r := startReporter(t, config, source)

	source <- opsEvent(1, 1)
	source <- opsEvent(2, 2)
	eventually(t, "transport errors", func() bool { return r.Stats().TransportErrors == 2 })
	if r.State() != Running {
		t.Errorf("state = %v, want running after failures", r.State())
	}
	if r.Stats().EventsFlushed != 2 {
		t.Errorf("EventsFlushed = %d, want 2", r.Stats().EventsFlushed)
	}
}

func TestMetricsModeSingleSample(t *testing.T) {
	client := newFakeClient()
	source := make(chan event.Event)
	startReporter(t, metricsConfig(client), source)

	source <- opsEvent(1, 12)
	metric := testutil.RequireReceive(t, client.metrics, receiveTimeout, "waiting for metric")
	want := statsd.Metric{Name: "load_requests_mean", Value: 12, Type: statsd.Gauge}
	if metric != want {
		t.Fatalf("metric = %+v, want %+v", metric, want)
	}
}

func TestMetricsModeAggregatesBatch(t *testing.T) {
	client := newFakeClient()
	config := metricsConfig(client)
	config.Threshold = 3
	source := make(chan event.Event)
	r := startReporter(t, config, source)

	source <- opsEvent(1, 4)
	source <- opsEvent(2, 8)
	source <- opsEvent(3, 10)
	metric := testutil.RequireReceive(t, client.metrics, receiveTimeout, "waiting for metric")
	if metric.Name != "load_requests_mean" || metric.Value != 7 {
		t.Fatalf("metric = %+v, want load_requests_mean 7", metric)
	}
	testutil.RequireNoReceive(t, client.metrics, quietPeriod, "more than one metric per batch")

	r.Stop()
	if client.closes.Load() != 1 {
		t.Errorf("client closed %d times, want 1", client.closes.Load())
	}
	if r.Stats().MetricsSent != 1 {
		t.Errorf("MetricsSent = %d, want 1", r.Stats().MetricsSent)
	}
}

func TestMetricsModeSkipsUnregisteredTypes(t *testing.T) {
	client := newFakeClient()
	source := make(chan event.Event)
	r := startReporter(t, metricsConfig(client), source)

	source <- event.Event{"event": "log", "message": "not registered"}
	eventually(t, "dropped count", func() bool { return r.Stats().DroppedUnregistered == 1 })
	testutil.RequireNoReceive(t, client.metrics, quietPeriod, "metric for unregistered type")
	if r.Stats().FormatterErrors != 0 {
		t.Errorf("FormatterErrors = %d, want 0", r.Stats().FormatterErrors)
	}
}

func TestMetricsModeIsolatesFormatterErrors(t *testing.T) {
	client := newFakeClient()
	config := metricsConfig(client)
	config.Threshold = 3
	registry := format.NewRegistry()
	registry.Register("request", format.Formatter(func(e event.Event, client statsd.MetricsClient) error {
		duration, ok := e.Number("duration")
		if !ok {
			return errors.New("no duration")
		}
		return client.Timing("request_duration", duration)
	}))
	config.Formatters = registry
	source := make(chan event.Event)
	r := startReporter(t, config, source)

	source <- event.Event{"event": "request", "timestamp": 1, "duration": 5}
	source <- event.Event{"event": "request", "timestamp": 2}
	source <- event.Event{"event": "request", "timestamp": 3, "duration": 7}

	first := testutil.RequireReceive(t, client.metrics, receiveTimeout, "first timing")
	second := testutil.RequireReceive(t, client.metrics, receiveTimeout, "second timing")
	if first.Value != 5 || second.Value != 7 {
		t.Fatalf("timings = %v, %v", first, second)
	}
	eventually(t, "formatter error count", func() bool { return r.Stats().FormatterErrors == 1 })
}

func TestMetricsModeOverUDP(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		want      []string
	}{
		{"batched", 3, []string{"load_requests_mean:7|g"}},
		{"per event", 0, []string{"load_requests_mean:4|g", "load_requests_mean:8|g", "load_requests_mean:10|g"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			addr, packets := testutil.ListenUDP(t)
			source := make(chan event.Event)
			r := startReporter(t, Config{
				Endpoint:  "udp://" + addr,
				Mode:      ModeMetrics,
				Threshold: test.threshold,
				Host:      "test-host",
				Logger:    discardLogger(),
			}, source)

			source <- opsEvent(1, 4)
			source <- opsEvent(2, 8)
			source <- opsEvent(3, 10)
			for _, want := range test.want {
				packet := testutil.RequireReceive(t, packets, receiveTimeout, "waiting for %s", want)
				if string(packet) != want {
					t.Fatalf("packet = %q, want %q", packet, want)
				}
			}
			r.Stop()
			if stats := r.Stats(); stats.TransportErrors != 0 || stats.DatagramsDropped != 0 {
				t.Errorf("stats = %+v", stats)
			}
		})
	}
}

func TestEnvelopeModeOverUDP(t *testing.T) {
	addr, packets := testutil.ListenUDP(t)
	source := make(chan event.Event)
	startReporter(t, Config{
		Endpoint:    addr,
		Threshold:   2,
		Host:        "web-1",
		Compression: envelope.CompressionZstd,
		Logger:      discardLogger(),
	}, source)

	source <- opsEvent(2, 8)
	source <- opsEvent(1, 4)

	packet := testutil.RequireReceive(t, packets, receiveTimeout, "waiting for envelope")
	decoded, err := envelope.Decode(packet, envelope.JSON, envelope.CompressionZstd)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Host != "web-1" || decoded.Schema != DefaultEnvelopeSchema {
		t.Errorf("host/schema = %q/%q", decoded.Host, decoded.Schema)
	}
	ops := decoded.Events["ops"]
	if len(ops) != 2 || requests(t, ops[0]) != 4 || requests(t, ops[1]) != 8 {
		t.Errorf("ops = %v", ops)
	}
}

func TestSendBufferOverUDP(t *testing.T) {
	addr, packets := testutil.ListenUDP(t)
	source := make(chan event.Event)
	startReporter(t, Config{
		Endpoint:        addr,
		Threshold:       1,
		Host:            "web-1",
		SendBufferBytes: 64 * 1024,
		Logger:          discardLogger(),
	}, source)

	source <- opsEvent(1, 4)
	packet := testutil.RequireReceive(t, packets, receiveTimeout, "waiting for envelope")
	if ops := decode(t, packet).Events["ops"]; len(ops) != 1 || requests(t, ops[0]) != 4 {
		t.Errorf("ops = %v", ops)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "Endpoint"},
		{"endpoint without port", func(c *Config) { c.Endpoint = "localhost" }, "Endpoint"},
		{"endpoint with wrong scheme", func(c *Config) { c.Endpoint = "tcp://localhost:8125" }, "Endpoint"},
		{"threshold with interval", func(c *Config) { c.Threshold = 5; c.Interval = time.Second }, "Interval"},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }, "Threshold"},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, "Interval"},
		{"unknown mode", func(c *Config) { c.Mode = Mode(9) }, "Mode"},
		{"empty registry", func(c *Config) { c.Formatters = format.NewRegistry() }, "Formatters"},
		{"unknown compression", func(c *Config) { c.Compression = envelope.Compression(7) }, "Compression"},
		{"negative send buffer", func(c *Config) { c.SendBufferBytes = -1 }, "SendBufferBytes"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := Config{Endpoint: "localhost:8125"}
			test.modify(&config)
			_, err := New(config)
			var configErr *ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("New = %v, want ConfigError", err)
			}
			if configErr.Field != test.field {
				t.Errorf("field = %q, want %q (%v)", configErr.Field, test.field, err)
			}
		})
	}
}

func TestConfigValidationReportsEveryProblem(t *testing.T) {
	config := Config{Threshold: -1, Interval: -1}
	err := config.Validate()
	for _, field := range []string{"Endpoint", "Threshold", "Interval"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	r, err := New(Config{Mode: ModeMetrics, Client: newFakeClient()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Stop()
	if r.schema != DefaultMetricsSchema {
		t.Errorf("schema = %q, want %q", r.schema, DefaultMetricsSchema)
	}
	if r.host == "" {
		t.Error("host was not resolved")
	}
	if _, ok := r.registry.Lookup("ops"); !ok {
		t.Error("default registry does not handle ops")
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := map[string]string{
		"localhost:8125":       "localhost:8125",
		"udp://localhost:8125": "localhost:8125",
		"127.0.0.1:9":          "127.0.0.1:9",
		"udp://[::1]:8125":     "[::1]:8125",
	}
	for input, want := range tests {
		got, err := ParseEndpoint(input)
		if err != nil || got != want {
			t.Errorf("ParseEndpoint(%q) = (%q, %v), want %q", input, got, err, want)
		}
	}
	for _, input := range []string{"localhost", "http://localhost:80", "udp://localhost"} {
		if _, err := ParseEndpoint(input); err == nil {
			t.Errorf("ParseEndpoint(%q) succeeded", input)
		}
	}
}

func TestParseMode(t *testing.T) {
	for input, want := range map[string]Mode{"": ModeEnvelope, "envelope": ModeEnvelope, "metrics": ModeMetrics} {
		if got, err := ParseMode(input); err != nil || got != want {
			t.Errorf("ParseMode(%q) = (%v, %v), want %v", input, got, err, want)
		}
	}
	if _, err := ParseMode("tcp"); err == nil {
		t.Error("ParseMode(tcp) succeeded")
	}
}
