// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the byte-level encodings shared by the
// streaming engine: CBOR for batches and fallback frames, block
// compression for payloads, and keyed BLAKE3 checksums for frame
// integrity.
//
// CBOR uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The same
// batch always produces the same bytes, which keeps checksums stable.
//
//	data, err := codec.Marshal(batch)
//	err = codec.Unmarshal(data, &batch)
//
// Compression is selected per payload by a [Compression] tag stored
// next to the payload, so a reader never has to guess:
//
//	compressed, tag, err := codec.Compress(data, codec.CompressionZstd)
//	raw, err := codec.Decompress(compressed, tag, len(data))
//
// Compress falls back to [CompressionNone] when the requested
// algorithm does not shrink the input.
package codec
