// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package luaformat

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/bureau-foundation/eventreporter/lib/event"
	"github.com/bureau-foundation/eventreporter/lib/format"
	"github.com/bureau-foundation/eventreporter/lib/statsd"
)

// EntryPoint is the global function a script must define.
const EntryPoint = "format"

// DefaultTimeout bounds one invocation of a script.
const DefaultTimeout = 100 * time.Millisecond

// Options tunes script execution.
type Options struct {
	// Timeout bounds each call of the entry point. Zero means
	// DefaultTimeout.
	Timeout time.Duration
}

// Script is a compiled Lua formatter. A Script owns one interpreter
// and serializes calls into it.
type Script struct {
	name    string
	timeout time.Duration

	mu       sync.Mutex
	state    *lua.LState
	entry    *lua.LFunction
	clientLV *lua.LTable

	// current is the client bound for the duration of one call.
	current statsd.MetricsClient
	closed  bool
}

// LoadFile reads and compiles the script at path.
func LoadFile(path string, options Options) (*Script, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lua formatter: %w", err)
	}
	return Compile(path, string(source), options)
}

// Compile runs source in a fresh restricted interpreter and resolves
// its format function. name is used in error messages.
func Compile(name, source string, options Options) (*Script, error) {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("lua formatter %s: %w", name, err)
	}
	if err := state.DoString(source); err != nil {
		state.Close()
		return nil, fmt.Errorf("lua formatter %s: %w", name, err)
	}
	entry, ok := state.GetGlobal(EntryPoint).(*lua.LFunction)
	if !ok {
		state.Close()
		return nil, fmt.Errorf("lua formatter %s: no global function %q", name, EntryPoint)
	}

	script := &Script{
		name:    name,
		timeout: timeout,
		state:   state,
		entry:   entry,
	}
	script.clientLV = script.newClientTable()
	return script, nil
}

// Name returns the name the script was compiled with.
func (s *Script) Name() string { return s.name }

// Formatter returns the script as a format capability.
func (s *Script) Formatter() format.Formatter {
	return s.Format
}

// Format calls the script's entry point with the event as a table and
// a client table exposing gauge, timing and counter. A Lua error, a
// timeout, or a returned error message fails the call.
func (s *Script) Format(e event.Event, client statsd.MetricsClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("lua formatter %s: closed", s.name)
	}

	s.current = client
	defer func() { s.current = nil }()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.state.SetContext(ctx)
	defer s.state.RemoveContext()

	eventLV := newConverter(s.state).convert(reflect.ValueOf(e))
	if err := s.state.CallByParam(lua.P{Fn: s.entry, NRet: 2, Protect: true}, eventLV, s.clientLV); err != nil {
		return fmt.Errorf("lua formatter %s: %w", s.name, err)
	}
	// format may return nil, "message" to reject an event without
	// raising.
	message := s.state.Get(-1)
	s.state.Pop(2)
	if text, ok := message.(lua.LString); ok && text != "" {
		return fmt.Errorf("lua formatter %s: %s", s.name, string(text))
	}
	return nil
}

// Close releases the interpreter. Calls after the first do nothing.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.state.Close()
}

// newClientTable builds the client table handed to every call. Each
// function returns true, or false and an error message, so one failed
// metric does not abort the script.
func (s *Script) newClientTable() *lua.LTable {
	table := s.state.NewTable()
	for name, metricType := range map[string]statsd.Type{
		"gauge":   statsd.Gauge,
		"timing":  statsd.Timing,
		"counter": statsd.Counter,
	} {
		s.state.SetField(table, name, s.state.NewFunction(func(L *lua.LState) int {
			metric := statsd.Metric{
				Name:  L.CheckString(1),
				Value: float64(L.CheckNumber(2)),
				Type:  metricType,
			}
			if err := statsd.Emit(s.current, metric); err != nil {
				L.Push(lua.LFalse)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			L.Push(lua.LTrue)
			return 1
		}))
	}
	return table
}

// newState opens an interpreter with only the base, table, string
// and math libraries, and without the file and chunk loaders.
func newState() (*lua.LState, error) {
	state := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, library := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		err := state.CallByParam(lua.P{
			Fn:      state.NewFunction(library.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(library.name))
		if err != nil {
			state.Close()
			return nil, fmt.Errorf("opening lua %q library: %w", library.name, err)
		}
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		state.SetGlobal(name, lua.LNil)
	}
	return state, nil
}
