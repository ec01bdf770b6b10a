// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/eventreporter/lib/codec"
)

// Encoding selects the serialization of an envelope.
type Encoding uint8

const (
	// JSON is the default encoding, understood by every collector.
	JSON Encoding = iota
	// CBOR is deterministic binary encoding via lib/codec.
	CBOR
)

func (e Encoding) String() string {
	switch e {
	case JSON:
		return "json"
	case CBOR:
		return "cbor"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// ParseEncoding parses "json" or "cbor". The empty string is JSON.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return 0, fmt.Errorf("unknown envelope encoding %q", name)
	}
}

// Compression selects datagram compression. The values are written
// into the datagram header and must not change.
type Compression uint8

const (
	// CompressionNone sends the encoded envelope as-is, without a
	// header.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level: better ratios
	// on JSON-heavy envelopes.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses "none", "lz4" or "zstd". The empty string
// is none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Encoder turns envelopes into datagrams.
//
// With compression configured, a datagram is a one-byte Compression
// tag, the uvarint length of the encoded envelope, then the payload.
// Envelopes that do not shrink are sent with the CompressionNone tag
// and the payload uncompressed.
type Encoder struct {
	encoding    Encoding
	compression Compression
}

// NewEncoder returns an encoder for the given settings.
func NewEncoder(encoding Encoding, compression Compression) *Encoder {
	return &Encoder{encoding: encoding, compression: compression}
}

// Encode serializes and, if configured, compresses envelope.
func (e *Encoder) Encode(envelope Envelope) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch e.encoding {
	case JSON:
		payload, err = json.Marshal(envelope)
	case CBOR:
		payload, err = codec.Marshal(envelope)
	default:
		return nil, fmt.Errorf("encoding envelope: unsupported encoding %d", e.encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding envelope as %s: %w", e.encoding, err)
	}
	if e.compression == CompressionNone {
		return payload, nil
	}

	tag := e.compression
	compressed, err := compress(payload, tag)
	if errors.Is(err, errIncompressible) {
		tag, compressed, err = CompressionNone, payload, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compressing envelope with %s: %w", e.compression, err)
	}

	datagram := make([]byte, 0, 1+binary.MaxVarintLen64+len(compressed))
	datagram = append(datagram, byte(tag))
	datagram = binary.AppendUvarint(datagram, uint64(len(payload)))
	return append(datagram, compressed...), nil
}

// Decode reverses Encode for a datagram produced with the same
// settings. Events decode as generic maps.
func Decode(datagram []byte, encoding Encoding, compression Compression) (Envelope, error) {
	payload := datagram
	if compression != CompressionNone {
		var err error
		payload, err = unframe(datagram)
		if err != nil {
			return Envelope{}, err
		}
	}

	var envelope Envelope
	var err error
	switch encoding {
	case JSON:
		err = json.Unmarshal(payload, &envelope)
	case CBOR:
		err = codec.Unmarshal(payload, &envelope)
	default:
		err = fmt.Errorf("unsupported encoding %d", encoding)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("decoding %s envelope: %w", encoding, err)
	}
	return envelope, nil
}

func unframe(datagram []byte) ([]byte, error) {
	if len(datagram) < 2 {
		return nil, fmt.Errorf("decoding envelope: datagram of %d bytes has no header", len(datagram))
	}
	tag := Compression(datagram[0])
	size, n := binary.Uvarint(datagram[1:])
	if n <= 0 {
		return nil, fmt.Errorf("decoding envelope: malformed length header")
	}
	body := datagram[1+n:]
	payload, err := decompress(body, tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return payload, nil
}

var errIncompressible = errors.New("data is incompressible")

// zstdEncoder and zstdDecoder are safe for concurrent use and reused
// across calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("envelope: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("envelope: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, tag Compression) ([]byte, error) {
	switch tag {
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", tag)
	}
}

func decompress(data []byte, tag Compression, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("uncompressed body is %d bytes, header says %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", tag)
	}
}
