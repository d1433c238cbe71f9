// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the streaming engine behind the C boundary: it
// batches timestamped channel samples and delivers them to the core
// ingestion service, a local fallback destination, or both.
//
// A [Stream] is assembled with a [Builder]:
//
//	stream, err := engine.NewBuilder().
//	    StreamToCore(token, resource).
//	    WithFileFallback("/data/run-42.nominal").
//	    WithOptions(options).
//	    Build(ctx)
//
// Samples enter through typed writers obtained per channel descriptor
// ([Stream.Float64Writer] and friends). Writers are cheap values; the
// boundary builds a fresh one for every pushed batch. Pushed samples
// land in an accumulator grouped into series by descriptor and type.
// A flush drains the accumulator into a sequenced [Batch], encodes it
// as deterministic CBOR, queues the bytes in a bounded drop-oldest
// buffer, and delivers every queued batch to the primary destination.
//
// Flushes happen when the caller asks ([Stream.Flush]), when the
// accumulated size crosses Options.FlushThresholdBytes, on every
// Options.FlushInterval tick, and once more on [Stream.Close].
//
// # Destinations
//
// Core ingestion posts each batch over HTTP with a bearer token held
// in locked memory. When the core rejects a batch and a fallback is
// configured, the batch is written to the fallback instead and the
// flush succeeds with a warning. Without a fallback the batch stays
// queued and the flush fails; the next flush retries it.
//
// The fallback is either an append-only framed file or, for paths
// ending in .sqlite, .sqlite3, or .db, a SQLite database. Each file
// frame records its compression, raw size, and a keyed BLAKE3
// checksum, and the file is exclusively flocked while a stream owns
// it. [ReadFallbackFile] and [ReadFallbackDatabase] decode either
// format back into batches.
package engine
