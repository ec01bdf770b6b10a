// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads event reporter configuration files.
//
// Configuration comes from a single file given by the --config flag or
// the EVENT_REPORTER_CONFIG environment variable. There is no search
// path and no per-field environment override; the only substitution
// is ${VAR} and ${VAR:-default} inside string values.
//
// YAML, JSON (with comments, as JSONC) and TOML are accepted, chosen
// by extension. All three share one set of field names:
//
//	endpoint: udp://statsd.internal:8125
//	mode: metrics
//	interval: 10s
//	prefix: web.
//	formatters:
//	  request:
//	    lua_file: request.lua
//	  queue:
//	    aggregates:
//	      - {name: queue_depth_mean, field: depth, func: mean, type: gauge}
//
// [File.Resolve] turns a loaded file into a reporter.Config.
package config
