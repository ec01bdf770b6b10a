// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statsd is the metrics-client side of the reporter's
// transport: formatters and aggregations call Gauge, Timing and
// Counter on a [MetricsClient], one call per metric.
//
// Two implementations are provided. [Client] renders each call as a
// single statsd line
//
//	<prefix><name>:<value>|<g|ms|c>
//
// and hands it to a transport.Sink, normally an AsyncSink over UDP so
// that a dead collector never stalls a flush. [DatadogClient] wraps
// the DogStatsD library for deployments that talk to a Datadog agent.
package statsd
