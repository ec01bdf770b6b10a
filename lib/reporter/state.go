// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"errors"
	"fmt"
)

// State is a reporter's lifecycle position. Transitions only move
// forward; Stopped is terminal.
type State uint8

const (
	Idle State = iota
	Initialized
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Lifecycle misuse errors.
var (
	ErrStopped            = errors.New("reporter: stopped")
	ErrAlreadyInitialized = errors.New("reporter: already initialized")
	ErrNotInitialized     = errors.New("reporter: not initialized")
	ErrAlreadyStarted     = errors.New("reporter: already started")
	ErrNotRunning         = errors.New("reporter: not running")
)
