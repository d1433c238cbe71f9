// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ffi implements the C-callable surface of the streaming
// library on top of plain Go types.
//
// A [Service] owns everything the boundary needs: the stream and
// writer registries with their handle allocators, the per-thread error
// slots, the worker bridge that runs blocking engine work, and the
// [Engine] that builds streams. The exported library in
// cmd/libnominal holds exactly one Service; tests build their own with
// a fake Engine.
//
// Each boundary call goes through a [Caller], which binds the Service
// to the calling thread's error slot. Caller methods accept the raw
// pointers and lengths the C side passes, validate them, and return a
// [Code]. A fallible method clears the thread's slot on entry and sets
// it exactly once on failure.
//
// Streams are reference counted: the stream handle holds one
// reference and every writer created on it holds another. Shutting
// down a stream handle while writers remain keeps the engine stream
// alive until the last writer is closed. The final release closes the
// engine stream, which flushes whatever is still pending.
//
// Writers hold no buffer of their own. A writer state records which
// stream and channel descriptor it targets, and each push builds a
// transient typed engine writer from that recipe while holding the
// state's lock for the whole batch.
package ffi
