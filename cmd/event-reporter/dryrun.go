// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/bureau-foundation/eventreporter/lib/codec"
	"github.com/bureau-foundation/eventreporter/lib/envelope"
	"github.com/bureau-foundation/eventreporter/lib/transport"
)

// dryRunSink prints datagrams instead of sending them. Plain JSON
// envelopes and statsd lines are written as is. Compressed envelopes
// are decoded first, and CBOR envelopes are shown in CBOR diagnostic
// notation. Metrics mode uses JSON without compression so statsd lines
// pass through.
type dryRunSink struct {
	out         *transport.WriterSink
	encoding    envelope.Encoding
	compression envelope.Compression
}

func newDryRunSink(w io.Writer, encoding envelope.Encoding, compression envelope.Compression) *dryRunSink {
	return &dryRunSink{
		out:         transport.NewWriterSink(w),
		encoding:    encoding,
		compression: compression,
	}
}

func (s *dryRunSink) Send(ctx context.Context, data []byte) error {
	if s.encoding == envelope.JSON && s.compression == envelope.CompressionNone {
		return s.out.Send(ctx, data)
	}
	decoded, err := envelope.Decode(data, s.encoding, s.compression)
	if err != nil {
		return &transport.Error{Op: "render", Err: err}
	}

	var rendered []byte
	switch s.encoding {
	case envelope.CBOR:
		encoded, err := codec.Marshal(decoded)
		if err != nil {
			return &transport.Error{Op: "render", Err: err}
		}
		diagnostic, err := codec.Diagnose(encoded)
		if err != nil {
			return &transport.Error{Op: "render", Err: err}
		}
		rendered = []byte(diagnostic)
	default:
		rendered, err = json.Marshal(decoded)
		if err != nil {
			return &transport.Error{Op: "render", Err: err}
		}
	}
	return s.out.Send(ctx, rendered)
}

func (s *dryRunSink) Close() error {
	return s.out.Close()
}
