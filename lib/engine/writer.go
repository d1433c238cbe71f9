// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
)

// ChannelWriter pushes samples of one type for one channel descriptor
// into a stream. It holds no buffer of its own, so creating one per
// batch costs nothing.
type ChannelWriter[T Value] struct {
	stream     *Stream
	descriptor channel.Descriptor
	kind       Kind
}

// NewChannelWriter returns a writer for descriptor on stream.
func NewChannelWriter[T Value](stream *Stream, descriptor channel.Descriptor) *ChannelWriter[T] {
	return &ChannelWriter[T]{
		stream:     stream,
		descriptor: descriptor,
		kind:       kindOf[T](),
	}
}

// Push records one sample. timestamp is the time since the Unix epoch.
func (w *ChannelWriter[T]) Push(timestamp time.Duration, value T) error {
	return w.stream.push(w.descriptor, w.kind, int64(timestamp), value)
}

// Descriptor returns the channel this writer feeds.
func (w *ChannelWriter[T]) Descriptor() channel.Descriptor {
	return w.descriptor
}
