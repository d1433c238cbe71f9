// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"math"
	"time"
	"unsafe"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
)

// pushBatch is the shared body of the typed push operations.
// writerFor picks the typed engine writer; valueAt decodes the i-th C
// array element. Samples before a failing index stay pushed.
func pushBatch[T any](
	c Caller,
	writer uint64,
	timestamps, values unsafe.Pointer,
	count uintptr,
	writerFor func(Stream, channel.Descriptor) Writer[T],
	valueAt func(values unsafe.Pointer, i int) (T, error),
) Code {
	c.clear()
	if count == 0 {
		return CodeSuccess
	}
	if timestamps == nil || values == nil {
		return c.fail(CodeInvalidParam, "Null pointer provided for data arrays")
	}
	state, ok := c.service.writers.Get(writer)
	if !ok {
		return c.fail(CodeInvalidHandle, "Invalid writer handle: %d", writer)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.stream == nil {
		return c.fail(CodeInvalidHandle, "Invalid writer handle: %d", writer)
	}
	typed := writerFor(state.stream.stream, state.descriptor)

	for i := 0; i < int(count); i++ {
		nanoseconds := element[uint64](timestamps, i)
		if nanoseconds > math.MaxInt64 {
			return c.fail(CodeInvalidParam, "Timestamp at index %d exceeds the supported range: %d", i, nanoseconds)
		}
		value, err := valueAt(values, i)
		if err != nil {
			return c.fail(CodeInvalidParam, "Invalid value at index %d: %v", i, err)
		}
		if err := typed.Push(time.Duration(nanoseconds), value); err != nil {
			return c.fail(CodeRuntime, "Push failed at index %d: %v", i, err)
		}
	}
	return CodeSuccess
}
