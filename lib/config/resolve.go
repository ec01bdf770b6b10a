// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/eventreporter/lib/envelope"
	"github.com/bureau-foundation/eventreporter/lib/format"
	"github.com/bureau-foundation/eventreporter/lib/luaformat"
	"github.com/bureau-foundation/eventreporter/lib/reporter"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
)

// Resolve turns the file into a reporter configuration: it parses the
// named settings, compiles Lua formatters, and builds the registry.
// In metrics mode with client "datadog" it also creates the DogStatsD
// client, which the reporter then owns. On error nothing it created
// is left open.
func (f *File) Resolve(logger *slog.Logger) (reporter.Config, error) {
	mode, err := reporter.ParseMode(f.Mode)
	if err != nil {
		return reporter.Config{}, err
	}
	encoding, err := envelope.ParseEncoding(f.Encoding)
	if err != nil {
		return reporter.Config{}, err
	}
	compression, err := envelope.ParseCompression(f.Compression)
	if err != nil {
		return reporter.Config{}, err
	}
	registry, err := f.Registry()
	if err != nil {
		return reporter.Config{}, err
	}

	config := reporter.Config{
		Endpoint:    f.Endpoint,
		Threshold:   f.Threshold,
		Interval:    time.Duration(f.Interval),
		Mode:        mode,
		Formatters:  registry,
		Schema:      f.Schema,
		Host:        f.Host,
		Prefix:      f.Prefix,
		Encoding:    encoding,
		Compression: compression,
		SendTimeout: time.Duration(f.SendTimeout),
		OutboxBytes: f.OutboxBytes,
		Logger:      logger,

		SendBufferBytes: f.SendBufferBytes,
	}

	if mode == reporter.ModeMetrics && f.Client == "datadog" {
		address, err := reporter.ParseEndpoint(f.Endpoint)
		if err != nil {
			registry.Close()
			return reporter.Config{}, fmt.Errorf("endpoint: %w", err)
		}
		client, err := statsd.NewDatadog(address, f.Prefix)
		if err != nil {
			registry.Close()
			return reporter.Config{}, err
		}
		config.Client = client
	}
	return config, nil
}

// Registry builds the formatter registry the file describes: the
// built-in formatters unless disabled, plus every declared one. A
// declared type replaces a built-in of the same name.
func (f *File) Registry() (*format.Registry, error) {
	builtin := format.DefaultRegistry()
	registry := format.NewRegistry()
	if !f.DisableDefaultFormatters {
		for _, eventType := range builtin.Types() {
			if _, declared := f.Formatters[eventType]; declared {
				continue
			}
			capability, _ := builtin.Lookup(eventType)
			if err := registry.Register(eventType, capability); err != nil {
				return nil, err
			}
		}
	}

	for _, eventType := range sortedKeys(f.Formatters) {
		capability, err := f.capability(registry, eventType, f.Formatters[eventType])
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("formatters.%s: %w", eventType, err)
		}
		if err := registry.Register(eventType, capability); err != nil {
			registry.Close()
			return nil, err
		}
	}
	return registry, nil
}

// capability builds one declared formatter. Compiled scripts are
// handed to registry, which closes them.
func (f *File) capability(registry *format.Registry, eventType string, declared FormatterConfig) (format.Capability, error) {
	options := luaformat.Options{Timeout: time.Duration(declared.Timeout)}
	switch {
	case declared.Lua != "":
		script, err := luaformat.Compile(eventType, declared.Lua, options)
		if err != nil {
			return nil, err
		}
		registry.Own(script.Close)
		return script.Formatter(), nil
	case declared.LuaFile != "":
		path := declared.LuaFile
		if !filepath.IsAbs(path) && f.dir != "" {
			path = filepath.Join(f.dir, path)
		}
		script, err := luaformat.LoadFile(path, options)
		if err != nil {
			return nil, err
		}
		registry.Own(script.Close)
		return script.Formatter(), nil
	default:
		aggregation := make(format.Aggregation, 0, len(declared.Aggregates))
		for _, aggregate := range declared.Aggregates {
			metricType := statsd.Gauge
			if aggregate.Type != "" {
				var err error
				metricType, err = statsd.ParseType(aggregate.Type)
				if err != nil {
					return nil, err
				}
			}
			function := format.Mean
			if aggregate.Func == "sum" {
				function = format.Sum
			}
			aggregation = append(aggregation, format.Aggregate{
				Name:  aggregate.Name,
				Field: aggregate.Field,
				Func:  function,
				Type:  metricType,
			})
		}
		return aggregation, nil
	}
}
