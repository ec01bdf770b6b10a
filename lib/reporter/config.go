// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/bureau-foundation/eventreporter/lib/clock"
	"github.com/bureau-foundation/eventreporter/lib/envelope"
	"github.com/bureau-foundation/eventreporter/lib/format"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
	"github.com/bureau-foundation/eventreporter/lib/transport"
)

// Mode selects how a flush leaves the process.
type Mode uint8

const (
	// ModeEnvelope sends one encoded envelope datagram per flush.
	ModeEnvelope Mode = iota
	// ModeMetrics runs formatters and aggregations and sends one
	// statsd metric per formatted item.
	ModeMetrics
)

func (m Mode) String() string {
	switch m {
	case ModeEnvelope:
		return "envelope"
	case ModeMetrics:
		return "metrics"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseMode parses "envelope" or "metrics". The empty string is
// envelope mode.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "envelope":
		return ModeEnvelope, nil
	case "metrics", "statsd":
		return ModeMetrics, nil
	default:
		return 0, fmt.Errorf("unknown reporter mode %q", name)
	}
}

// Default schema names, by mode.
const (
	DefaultEnvelopeSchema = "good-udp"
	DefaultMetricsSchema  = "good-statsd"
)

// Config configures a Reporter. The zero value of every optional
// field selects a default.
type Config struct {
	// Endpoint is the collector address: "host:port" or
	// "udp://host:port". Required unless Sink or, in metrics mode,
	// Client is set.
	Endpoint string

	// Threshold is the buffered event count that triggers a flush
	// when Interval is zero. Zero flushes every event on its own.
	Threshold int

	// Interval, when positive, flushes on a timer instead of by
	// count. Setting both Interval and Threshold is an error.
	Interval time.Duration

	Mode Mode

	// Formatters selects the event types that are dispatched and how
	// they are formatted. Nil means format.DefaultRegistry(). An
	// empty registry is an error: nothing would ever be sent. The
	// reporter closes it on stop.
	Formatters *format.Registry

	// Schema tags envelopes. Defaults to DefaultEnvelopeSchema or
	// DefaultMetricsSchema by mode.
	Schema string

	// Host identifies this process in envelopes. Defaults to
	// os.Hostname(), resolved once in New.
	Host string

	// Prefix is prepended to every statsd metric name in metrics
	// mode.
	Prefix string

	Encoding    envelope.Encoding
	Compression envelope.Compression

	// SendTimeout bounds each datagram write. Zero means
	// transport.DefaultSendTimeout.
	SendTimeout time.Duration

	// OutboxBytes bounds the datagrams queued behind a slow
	// collector. Zero means transport.DefaultOutboxBytes.
	OutboxBytes int

	// SendBufferBytes sets the UDP socket send buffer (SO_SNDBUF).
	// Zero keeps the system default.
	SendBufferBytes int

	// Clock drives interval flushes and envelope timestamps. Nil
	// means the real clock.
	Clock clock.Clock

	// Logger receives lifecycle events and every dropped failure.
	// Nil means slog.Default().
	Logger *slog.Logger

	// Sink replaces the UDP transport. In metrics mode without a
	// Client, statsd lines are written to it. The reporter takes
	// ownership and closes it on stop.
	Sink transport.Sink

	// Client replaces the native statsd client in metrics mode. The
	// reporter takes ownership and closes it on stop.
	Client statsd.MetricsClient
}

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("reporter config: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration and returns every problem found,
// joined. Each is a *ConfigError.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, reason string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(reason, args...)})
	}

	injected := c.Sink != nil || (c.Mode == ModeMetrics && c.Client != nil)
	if !injected {
		if c.Endpoint == "" {
			invalid("Endpoint", "required")
		} else if _, err := ParseEndpoint(c.Endpoint); err != nil {
			invalid("Endpoint", "%v", err)
		}
	}

	if c.Threshold < 0 {
		invalid("Threshold", "must not be negative, got %d", c.Threshold)
	}
	if c.Interval < 0 {
		invalid("Interval", "must not be negative, got %v", c.Interval)
	}
	if c.Threshold > 0 && c.Interval > 0 {
		invalid("Interval", "cannot be combined with Threshold %d; choose one flush policy", c.Threshold)
	}

	switch c.Mode {
	case ModeEnvelope, ModeMetrics:
	default:
		invalid("Mode", "unknown mode %d", c.Mode)
	}

	if c.Formatters != nil && c.Formatters.Len() == 0 {
		invalid("Formatters", "registry is empty; no event type would be dispatched")
	}

	if c.Encoding != envelope.JSON && c.Encoding != envelope.CBOR {
		invalid("Encoding", "unknown encoding %d", c.Encoding)
	}
	switch c.Compression {
	case envelope.CompressionNone, envelope.CompressionLZ4, envelope.CompressionZstd:
	default:
		invalid("Compression", "unknown compression %d", c.Compression)
	}

	if c.SendTimeout < 0 {
		invalid("SendTimeout", "must not be negative, got %v", c.SendTimeout)
	}
	if c.OutboxBytes < 0 {
		invalid("OutboxBytes", "must not be negative, got %d", c.OutboxBytes)
	}
	if c.SendBufferBytes < 0 {
		invalid("SendBufferBytes", "must not be negative, got %d", c.SendBufferBytes)
	}

	return errors.Join(errs...)
}

// ParseEndpoint normalizes an endpoint to host:port. It accepts a
// bare "host:port" or a "udp://host:port" URL.
func ParseEndpoint(endpoint string) (string, error) {
	address := endpoint
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		if parsed.Scheme != "udp" {
			return "", fmt.Errorf("unsupported scheme %q (want udp)", parsed.Scheme)
		}
		address = parsed.Host
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	if port == "" {
		return "", fmt.Errorf("endpoint %q: missing port", endpoint)
	}
	return net.JoinHostPort(host, port), nil
}
