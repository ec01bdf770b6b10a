// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package statsd

import (
	"fmt"
	"math"
	"sync"

	datadog "github.com/DataDog/datadog-go/statsd"
)

// DatadogClient adapts the DogStatsD client library to MetricsClient.
// The library batches lines into packets and sends them from its own
// goroutine, so calls never wait on the network. Use it when the
// collector is a Datadog agent or when packet batching is preferred
// over one datagram per metric.
type DatadogClient struct {
	client *datadog.Client

	closeOnce sync.Once
	closeErr  error
}

// NewDatadog connects a DogStatsD client to addr (host:port). prefix
// becomes the client namespace and is prepended to every name.
func NewDatadog(addr, prefix string) (*DatadogClient, error) {
	var options []datadog.Option
	if prefix != "" {
		options = append(options, datadog.WithNamespace(prefix))
	}
	client, err := datadog.New(addr, options...)
	if err != nil {
		return nil, fmt.Errorf("creating dogstatsd client for %s: %w", addr, err)
	}
	return &DatadogClient{client: client}, nil
}

func (c *DatadogClient) Gauge(name string, value float64) error {
	return c.client.Gauge(name, value, nil, 1)
}

func (c *DatadogClient) Timing(name string, value float64) error {
	return c.client.TimeInMilliseconds(name, value, nil, 1)
}

// Counter rounds value to the nearest integer; DogStatsD counts are
// integral.
func (c *DatadogClient) Counter(name string, value float64) error {
	increment := int64(math.Round(value))
	if increment == 0 {
		return nil
	}
	return c.client.Count(name, increment, nil, 1)
}

// Close flushes buffered lines and releases the socket, once.
func (c *DatadogClient) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}
