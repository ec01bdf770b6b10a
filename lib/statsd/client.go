// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statsd

import (
	"context"
	"sync"

	"github.com/bureau-foundation/eventreporter/lib/transport"
)

// Client writes each metric call as one statsd line on a transport
// sink. Wrap the sink in a transport.AsyncSink to keep calls from
// waiting on the network.
type Client struct {
	sink   transport.Sink
	prefix string

	closeOnce sync.Once
	closeErr  error
}

// NewClient returns a Client over sink. prefix is prepended verbatim
// to every metric name (include a trailing "." if one is wanted). The
// Client owns sink: Close closes it.
func NewClient(sink transport.Sink, prefix string) *Client {
	return &Client{sink: sink, prefix: prefix}
}

// Gauge sets a gauge. statsd reads a leading sign as a delta, so a
// negative value is sent as a reset to 0 followed by the value.
func (c *Client) Gauge(name string, value float64) error {
	if value < 0 {
		if err := c.send(Metric{Name: name, Value: 0, Type: Gauge}); err != nil {
			return err
		}
	}
	return c.send(Metric{Name: name, Value: value, Type: Gauge})
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value float64) error {
	return c.send(Metric{Name: name, Value: value, Type: Timing})
}

// Counter adds value to a counter. A zero increment is not sent.
func (c *Client) Counter(name string, value float64) error {
	if value == 0 {
		return nil
	}
	return c.send(Metric{Name: name, Value: value, Type: Counter})
}

// Close closes the sink once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sink.Close()
	})
	return c.closeErr
}

func (c *Client) send(m Metric) error {
	return c.sink.Send(context.Background(), []byte(Line(c.prefix, m)))
}
