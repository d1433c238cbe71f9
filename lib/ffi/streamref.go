// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"sync"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
)

// streamRef shares one engine stream between its stream handle and the
// writers created on it. The stream is closed when the count drops to
// zero; after that acquire always fails.
type streamRef struct {
	stream Stream

	// finalize closes the engine stream. It runs exactly once, on
	// the goroutine that drops the last reference.
	finalize func(Stream)

	mu       sync.Mutex
	refs     int
	released bool
}

func newStreamRef(stream Stream, finalize func(Stream)) *streamRef {
	return &streamRef{stream: stream, finalize: finalize, refs: 1}
}

// acquire adds a reference. It fails once the stream has been
// finalized, which happens when a concurrent release races a lookup.
func (r *streamRef) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return false
	}
	r.refs++
	return true
}

// release drops a reference, finalizing the stream on the last one.
func (r *streamRef) release() {
	r.mu.Lock()
	r.refs--
	last := r.refs == 0
	if last {
		r.released = true
	}
	r.mu.Unlock()

	if last {
		r.finalize(r.stream)
	}
}

// writerState is the recipe for building typed engine writers: which
// stream and which channel. mu is held for a whole push batch, so
// batches on the same writer never interleave. stream is nil once the
// writer has been closed.
type writerState struct {
	mu         sync.Mutex
	stream     *streamRef
	descriptor channel.Descriptor
}

// detach clears the state's stream reference under the lock, waiting
// out any push in flight, and returns what it held.
func (w *writerState) detach() *streamRef {
	w.mu.Lock()
	defer w.mu.Unlock()
	ref := w.stream
	w.stream = nil
	return ref
}

// streamForFlush returns the writer's stream with an extra reference
// held, or nil if the writer has been closed.
func (w *writerState) streamForFlush() *streamRef {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream == nil || !w.stream.acquire() {
		return nil
	}
	return w.stream
}
