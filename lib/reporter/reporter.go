// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/eventreporter/lib/clock"
	"github.com/bureau-foundation/eventreporter/lib/envelope"
	"github.com/bureau-foundation/eventreporter/lib/event"
	"github.com/bureau-foundation/eventreporter/lib/format"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
	"github.com/bureau-foundation/eventreporter/lib/transport"
)

// dialTimeout bounds name resolution when New opens the UDP socket.
const dialTimeout = 5 * time.Second

// Stats are cumulative counters over a reporter's life.
type Stats struct {
	// Flushes counts every flush, including empty ones.
	Flushes uint64

	// EmptyFlushes counts flushes that found the buffer empty.
	EmptyFlushes uint64

	// EventsFlushed counts events handed to a dispatcher.
	EventsFlushed uint64

	// DroppedUnregistered counts events whose type has no registered
	// capability.
	DroppedUnregistered uint64

	// MetricsSent counts metric calls accepted by the client.
	MetricsSent uint64

	FormatterErrors uint64
	TransportErrors uint64

	// DatagramsDropped counts datagrams evicted or abandoned by the
	// outbox in front of the UDP socket.
	DatagramsDropped uint64
}

type counters struct {
	flushes             atomic.Uint64
	emptyFlushes        atomic.Uint64
	eventsFlushed       atomic.Uint64
	droppedUnregistered atomic.Uint64
	metricsSent         atomic.Uint64
	formatterErrors     atomic.Uint64
	transportErrors     atomic.Uint64
}

// Reporter batches events from a source channel and dispatches them
// on the configured flush policy.
//
// One goroutine owns the buffer: event arrival, timer ticks, forced
// flushes and stop requests are all handled in its loop, so flushes
// never overlap and no tick can flush after the transport closes.
type Reporter struct {
	logger      *slog.Logger
	clock       clock.Clock
	threshold   int
	interval    time.Duration
	mode        Mode
	host        string
	schema      string
	endpoint    string
	sendTimeout time.Duration
	registry    *format.Registry

	buffer     Buffer
	dispatcher dispatcher
	outbox     *transport.AsyncSink
	stats      counters

	mu     sync.Mutex
	state  State
	source <-chan event.Event

	flushRequests chan chan struct{}
	stopping      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	doneOnce      sync.Once
	closeOnce     sync.Once
}

// New validates config, resolves its defaults, and opens the
// transport. The reporter starts Idle.
func New(config Config) (*Reporter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Reporter{
		logger:        config.Logger,
		clock:         config.Clock,
		threshold:     config.Threshold,
		interval:      config.Interval,
		mode:          config.Mode,
		host:          config.Host,
		schema:        config.Schema,
		sendTimeout:   config.SendTimeout,
		registry:      config.Formatters,
		flushRequests: make(chan chan struct{}),
		stopping:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.sendTimeout == 0 {
		r.sendTimeout = transport.DefaultSendTimeout
	}
	if r.registry == nil {
		r.registry = format.DefaultRegistry()
	}
	if r.schema == "" {
		r.schema = DefaultEnvelopeSchema
		if r.mode == ModeMetrics {
			r.schema = DefaultMetricsSchema
		}
	}
	if r.host == "" {
		hostname, err := os.Hostname()
		if err != nil {
			r.logger.Warn("cannot resolve hostname, using localhost", "error", err)
			hostname = "localhost"
		}
		r.host = hostname
	}
	if config.Endpoint != "" {
		// Validate has already accepted it.
		r.endpoint, _ = ParseEndpoint(config.Endpoint)
	}

	switch r.mode {
	case ModeEnvelope:
		sink := config.Sink
		if sink == nil {
			outbox, err := r.openOutbox(config)
			if err != nil {
				return nil, err
			}
			sink = outbox
		}
		r.dispatcher = &envelopeDispatcher{
			reporter: r,
			encoder:  envelope.NewEncoder(config.Encoding, config.Compression),
			sink:     sink,
		}
	case ModeMetrics:
		client := config.Client
		if client == nil && config.Sink != nil {
			client = statsd.NewClient(config.Sink, config.Prefix)
		}
		if client == nil {
			outbox, err := r.openOutbox(config)
			if err != nil {
				return nil, err
			}
			client = statsd.NewClient(outbox, config.Prefix)
		}
		r.dispatcher = &metricsDispatcher{
			reporter: r,
			pipeline: format.NewPipeline(r.registry),
			client:   client,
		}
	}
	return r, nil
}

// openOutbox dials the collector and puts a bounded outbox in front
// of the socket.
func (r *Reporter) openOutbox(config Config) (*transport.AsyncSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	udp, err := transport.DialUDP(ctx, r.endpoint, transport.UDPOptions{
		SendTimeout:     r.sendTimeout,
		SendBufferBytes: config.SendBufferBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("opening reporter transport: %w", err)
	}
	r.outbox = transport.NewAsyncSink(udp, transport.AsyncConfig{
		MaxBytes:    config.OutboxBytes,
		SendTimeout: r.sendTimeout,
		OnError:     r.transportFailed,
		Logger:      r.logger,
	})
	return r.outbox, nil
}

// Init binds the event source. Closing source ends the stream: the
// reporter flushes what it holds and stops. A nil source never
// delivers; such a reporter runs until Stop or context cancellation.
func (r *Reporter) Init(source <-chan event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Idle:
		r.source = source
		r.state = Initialized
		return nil
	case Stopped:
		return ErrStopped
	default:
		return ErrAlreadyInitialized
	}
}

// Start arms the interval timer, if any, and launches the run loop.
// Cancelling ctx stops the reporter the same way Stop does.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Idle:
		return ErrNotInitialized
	case Initialized:
	case Stopped:
		return ErrStopped
	default:
		return ErrAlreadyStarted
	}

	var ticker *clock.Ticker
	if r.interval > 0 {
		ticker = r.clock.NewTicker(r.interval)
	}
	r.state = Running
	r.logger.Info("reporter started",
		"mode", r.mode.String(),
		"endpoint", r.endpoint,
		"threshold", r.threshold,
		"interval", r.interval,
		"types", r.registry.Types(),
	)
	go r.run(ctx, r.source, ticker)
	return nil
}

// Stop drains and stops the reporter, and returns once it is Stopped.
// Events already queued on the source are included in the final
// flush. Stop is idempotent and may be called in any state; before
// Start it only closes the transport. It must not be called from a
// formatter.
func (r *Reporter) Stop() {
	r.mu.Lock()
	switch r.state {
	case Idle, Initialized:
		r.state = Stopped
		r.mu.Unlock()
		r.closeTransport()
		r.doneOnce.Do(func() { close(r.done) })
		r.logger.Info("reporter stopped before start")
		return
	case Running:
		r.stopOnce.Do(func() { close(r.stopping) })
	}
	r.mu.Unlock()
	<-r.done
}

// ForceFlush flushes the buffer now, regardless of policy, and
// returns once the flush has been dispatched.
func (r *Reporter) ForceFlush(ctx context.Context) error {
	switch r.State() {
	case Idle, Initialized:
		return ErrNotRunning
	case Draining, Stopped:
		return ErrStopped
	}

	request := make(chan struct{})
	select {
	case r.flushRequests <- request:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-request:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the reporter reaches Stopped.
func (r *Reporter) Done() <-chan struct{} {
	return r.done
}

func (r *Reporter) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns a snapshot of the counters.
func (r *Reporter) Stats() Stats {
	stats := Stats{
		Flushes:             r.stats.flushes.Load(),
		EmptyFlushes:        r.stats.emptyFlushes.Load(),
		EventsFlushed:       r.stats.eventsFlushed.Load(),
		DroppedUnregistered: r.stats.droppedUnregistered.Load(),
		MetricsSent:         r.stats.metricsSent.Load(),
		FormatterErrors:     r.stats.formatterErrors.Load(),
		TransportErrors:     r.stats.transportErrors.Load(),
	}
	if r.outbox != nil {
		stats.DatagramsDropped = r.outbox.Dropped()
	}
	return stats
}

func (r *Reporter) run(ctx context.Context, source <-chan event.Event, ticker *clock.Ticker) {
	var ticks <-chan time.Time
	if ticker != nil {
		ticks = ticker.C
	}
	for {
		select {
		case e, ok := <-source:
			if !ok {
				r.drain(nil, ticker, "end of stream")
				return
			}
			r.ingest(e)
		case <-ticks:
			r.flush("interval")
		case request := <-r.flushRequests:
			r.flush("forced")
			close(request)
		case <-r.stopping:
			r.drain(source, ticker, "stop requested")
			return
		case <-ctx.Done():
			r.drain(source, ticker, "context cancelled")
			return
		}
	}
}

func (r *Reporter) ingest(e event.Event) {
	r.buffer.Append(e)
	if r.interval == 0 && r.buffer.Len() >= r.threshold {
		r.flush("threshold")
	}
}

// drain performs the shutdown sequence: stop the timer, take in what
// the source already holds, flush, close the transport.
func (r *Reporter) drain(source <-chan event.Event, ticker *clock.Ticker, reason string) {
	r.setState(Draining)
	r.logger.Info("reporter draining", "reason", reason, "buffered", r.buffer.Len())

	if ticker != nil {
		ticker.Stop()
	}
	if source != nil {
		// Bounded by what was queued when draining began.
		pending := len(source)
	queued:
		for range pending {
			select {
			case e, ok := <-source:
				if !ok {
					break queued
				}
				r.ingest(e)
			default:
				break queued
			}
		}
	}
	r.flush("drain")
	r.closeTransport()

	r.setState(Stopped)
	r.doneOnce.Do(func() { close(r.done) })
	stats := r.Stats()
	r.logger.Info("reporter stopped",
		"flushes", stats.Flushes,
		"events_flushed", stats.EventsFlushed,
		"transport_errors", stats.TransportErrors,
		"datagrams_dropped", stats.DatagramsDropped,
	)
}

func (r *Reporter) flush(reason string) {
	r.stats.flushes.Add(1)
	if r.buffer.IsEmpty() {
		r.stats.emptyFlushes.Add(1)
		return
	}
	events := r.buffer.Drain()
	r.logger.Debug("flushing", "reason", reason, "events", len(events))
	r.dispatcher.dispatch(event.Group(events))
}

func (r *Reporter) closeTransport() {
	r.closeOnce.Do(func() {
		if err := r.dispatcher.close(); err != nil {
			r.logger.Warn("closing reporter transport", "error", err)
		}
		r.registry.Close()
	})
}

// transportFailed records a dropped send. It may be called from the
// outbox's sender goroutine.
func (r *Reporter) transportFailed(err error) {
	r.stats.transportErrors.Add(1)
	r.logger.Warn("event delivery failed", "error", err)
}

func (r *Reporter) setState(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}
