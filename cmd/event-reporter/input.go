// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/eventreporter/lib/event"
)

// maxLineBytes bounds one input line.
const maxLineBytes = 1 << 20

// readEvents decodes newline-delimited JSON objects from r and sends
// each as an event on out. Blank lines are ignored and malformed lines
// are logged and skipped. out is closed when r is exhausted, which ends
// the reporter's stream. Numbers are kept as json.Number so integer
// values survive unchanged into envelopes.
func readEvents(ctx context.Context, r io.Reader, out chan<- event.Event, logger *slog.Logger) error {
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		var e event.Event
		if err := decoder.Decode(&e); err != nil {
			logger.Warn("skipping malformed event", "line", line, "error", err)
			continue
		}
		if e == nil {
			logger.Warn("skipping malformed event", "line", line, "error", "not a JSON object")
			continue
		}

		select {
		case out <- e:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("line %d: %w", line+1, err)
	}
	return nil
}
