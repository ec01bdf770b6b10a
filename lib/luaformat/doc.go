// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package luaformat lets event formatters be written as Lua scripts
// and declared in configuration files instead of compiled in.
//
// A script defines a global function
//
//	function format(event, client)
//	  client.timing("request_duration", event.duration)
//	end
//
// event is the event as a table (nested maps become nested tables).
// client exposes gauge, timing and counter, each returning true or
// false plus an error message. The function may return nil and a
// message to reject an event; raising an error does the same.
//
// Scripts run in a restricted interpreter with only the base, table,
// string and math libraries, and each call is bounded by a timeout.
package luaformat
