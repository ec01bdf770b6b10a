// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the reporter's CBOR configuration.
//
// Envelopes are JSON by default, because that is what collectors
// expect. Collectors that understand CBOR can opt in to the binary
// encoding, which is smaller on the wire and deterministic: the
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same envelope always produces identical bytes.
//
//	data, err := codec.Marshal(envelope)
//	err = codec.Unmarshal(data, &decoded)
//
// Struct types use `json` tags only. fxamacker/cbor reads `json` tags
// when `cbor` tags are absent, so one tag names the field in both
// encodings.
package codec
