// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"unsafe"

	"github.com/bureau-foundation/nominal-ffi/lib/bridge"
	"github.com/bureau-foundation/nominal-ffi/lib/channel"
	"github.com/bureau-foundation/nominal-ffi/lib/engine"
	"github.com/bureau-foundation/nominal-ffi/lib/lasterror"
	"github.com/bureau-foundation/nominal-ffi/lib/secret"
	"github.com/bureau-foundation/nominal-ffi/lib/version"
)

// Caller performs boundary operations on behalf of one OS thread.
// Pointer arguments are exactly what the C side passed: C strings are
// NUL-terminated, handle outputs point at a uint64_t, and arrays hold
// count elements.
type Caller struct {
	service *Service
	thread  lasterror.Thread
}

func (c Caller) clear() {
	c.service.errors.Clear(c.thread)
}

func (c Caller) fail(code Code, format string, args ...any) Code {
	c.service.errors.Set(c.thread, fmt.Sprintf(format, args...))
	return code
}

// Run calls operation and converts a panic into CodeGeneric with a
// diagnostic, so that nothing unwinds into C.
func (c Caller) Run(operation func() Code) (code Code) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.service.logger.Error("boundary call panicked",
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			code = c.fail(CodeGeneric, "Internal error: %v", recovered)
		}
	}()
	return operation()
}

// Init constructs a stream and stores its handle through out.
//
// token may be nil, in which case the token environment variable is
// consulted. resource is always required but only validated when a
// token is present. fallback may be nil. With neither a token nor a
// fallback path there is nowhere to send data.
func (c Caller) Init(token, resource, fallback, out unsafe.Pointer) Code {
	c.clear()
	if out == nil {
		return c.fail(CodeInvalidParam, "Output handle pointer is null")
	}
	rid, err := cString(resource)
	if err != nil {
		return c.fail(CodeInvalidParam, "Invalid dataset RID: %v", err)
	}
	fallbackPath, _, err := optionalCString(fallback)
	if err != nil {
		return c.fail(CodeInvalidParam, "Invalid fallback path: %v", err)
	}

	credential, code := c.credential(token)
	if code != CodeSuccess {
		return code
	}
	if credential == nil && fallbackPath == "" {
		return c.fail(CodeInvalidParam, "Either token or fallback file path must be provided")
	}

	request := StreamRequest{Credential: credential, Resource: rid, FallbackPath: fallbackPath}
	stream, err := bridge.Call(c.service.bridge, func(ctx context.Context) (Stream, error) {
		return c.service.engine.Construct(ctx, request)
	})
	if err != nil {
		if errors.Is(err, bridge.ErrClosed) && credential != nil {
			credential.Close()
		}
		return c.constructionFailure(err)
	}

	h := c.service.streamHandles.Next()
	c.service.streams.Insert(h, newStreamRef(stream, c.service.finalizeStream))
	storeHandle(out, h)
	c.service.logger.Info("stream created",
		"stream", h,
		"remote", credential != nil,
		"fallback", fallbackPath,
	)
	return CodeSuccess
}

// credential resolves the bearer token into protected memory. A nil
// buffer with CodeSuccess means no token was supplied anywhere.
func (c Caller) credential(token unsafe.Pointer) (*secret.Buffer, Code) {
	if token == nil {
		buffer, err := secret.FromEnv(c.service.tokenVariable)
		if err != nil {
			return nil, c.fail(CodeRuntime, "Failed to read %s: %v", c.service.tokenVariable, err)
		}
		return buffer, CodeSuccess
	}
	raw := cBytes(token)
	if len(raw) == 0 {
		return nil, c.fail(CodeInvalidParam, "Invalid token: %v", fmt.Errorf("%w: token is empty", engine.ErrInvalidToken))
	}
	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, c.fail(CodeRuntime, "Failed to protect token: %v", err)
	}
	return buffer, CodeSuccess
}

func (c Caller) constructionFailure(err error) Code {
	switch {
	case errors.Is(err, engine.ErrInvalidToken):
		return c.fail(CodeInvalidParam, "Invalid token: %v", err)
	case errors.Is(err, engine.ErrInvalidResource):
		return c.fail(CodeInvalidParam, "Invalid dataset RID: %v", err)
	case errors.Is(err, engine.ErrNoDestination):
		return c.fail(CodeInvalidParam, "Either token or fallback file path must be provided")
	case errors.Is(err, engine.ErrFallbackOpen):
		return c.fail(CodeIO, "Failed to open fallback file: %v", err)
	default:
		return c.fail(CodeRuntime, "Failed to create stream: %v", err)
	}
}

// CreateChannel registers a writer for channel name with the given tag
// string on stream and stores its handle through out. tags may be nil.
func (c Caller) CreateChannel(stream uint64, name, tags, out unsafe.Pointer) Code {
	c.clear()
	if out == nil {
		return c.fail(CodeInvalidParam, "Output handle pointer is null")
	}
	ref, ok := c.service.streams.Get(stream)
	if !ok {
		return c.fail(CodeInvalidHandle, "Invalid stream handle: %d", stream)
	}
	channelName, err := cString(name)
	if err != nil {
		return c.fail(CodeInvalidParam, "Invalid channel name: %v", err)
	}
	encodedTags, _, err := optionalCString(tags)
	if err != nil {
		return c.fail(CodeInvalidParam, "Invalid tags: %v", err)
	}
	if !ref.acquire() {
		return c.fail(CodeInvalidHandle, "Invalid stream handle: %d", stream)
	}

	state := &writerState{
		stream:     ref,
		descriptor: channel.Parse(channelName, encodedTags),
	}
	h := c.service.writerHandles.Next()
	c.service.writers.Insert(h, state)
	storeHandle(out, h)
	return CodeSuccess
}

// PushFloat64 appends count samples from parallel timestamp and value
// arrays to writer.
func (c Caller) PushFloat64(writer uint64, timestamps, values unsafe.Pointer, count uintptr) Code {
	return pushBatch(c, writer, timestamps, values, count, Stream.Float64Writer,
		func(values unsafe.Pointer, i int) (float64, error) {
			return element[float64](values, i), nil
		})
}

// PushInt64 is PushFloat64 for int64 values.
func (c Caller) PushInt64(writer uint64, timestamps, values unsafe.Pointer, count uintptr) Code {
	return pushBatch(c, writer, timestamps, values, count, Stream.Int64Writer,
		func(values unsafe.Pointer, i int) (int64, error) {
			return element[int64](values, i), nil
		})
}

// PushBool is PushFloat64 for boolean values, passed as uint8 where
// any non-zero byte is true.
func (c Caller) PushBool(writer uint64, timestamps, values unsafe.Pointer, count uintptr) Code {
	return pushBatch(c, writer, timestamps, values, count, Stream.BoolWriter,
		func(values unsafe.Pointer, i int) (bool, error) {
			return element[uint8](values, i) != 0, nil
		})
}

// PushString is PushFloat64 for text values, passed as an array of C
// string pointers.
func (c Caller) PushString(writer uint64, timestamps, values unsafe.Pointer, count uintptr) Code {
	return pushBatch(c, writer, timestamps, values, count, Stream.StringWriter,
		func(values unsafe.Pointer, i int) (string, error) {
			return cString(element[unsafe.Pointer](values, i))
		})
}

// Flush delivers everything buffered on stream. Samples the engine
// discarded since the previous flush fail it with CodeRuntime.
func (c Caller) Flush(stream uint64) Code {
	c.clear()
	ref, ok := c.service.streams.Get(stream)
	if !ok || !ref.acquire() {
		return c.fail(CodeInvalidHandle, "Invalid stream handle: %d", stream)
	}
	defer ref.release()
	return c.flush(ref)
}

// FlushChannel flushes the stream writer belongs to. Streams buffer
// per stream, not per channel, so other channels are delivered too.
func (c Caller) FlushChannel(writer uint64) Code {
	c.clear()
	state, ok := c.service.writers.Get(writer)
	if !ok {
		return c.fail(CodeInvalidHandle, "Invalid writer handle: %d", writer)
	}
	ref := state.streamForFlush()
	if ref == nil {
		return c.fail(CodeInvalidHandle, "Invalid writer handle: %d", writer)
	}
	defer ref.release()
	return c.flush(ref)
}

func (c Caller) flush(ref *streamRef) Code {
	err := bridge.Do(c.service.bridge, func(ctx context.Context) error {
		return ref.stream.Flush(ctx)
	})
	if err != nil {
		return c.fail(CodeRuntime, "Flush failed: %v", err)
	}
	return CodeSuccess
}

// CloseChannel invalidates writer. Samples it pushed stay buffered in
// the stream; nothing is flushed unless this was the stream's last
// reference, in which case the call waits for the final flush.
func (c Caller) CloseChannel(writer uint64) Code {
	c.clear()
	state, ok := c.service.writers.Remove(writer)
	if !ok {
		return c.fail(CodeInvalidHandle, "Invalid writer handle: %d", writer)
	}
	if ref := state.detach(); ref != nil {
		ref.release()
	}
	return CodeSuccess
}

// Shutdown invalidates stream. The engine stream is closed, with a
// final flush, once no writer references it; the call that drops the
// last reference blocks until that close returns. A failed close is
// logged and does not change the result: the handle is gone either
// way.
func (c Caller) Shutdown(stream uint64) Code {
	c.clear()
	ref, ok := c.service.streams.Remove(stream)
	if !ok {
		return c.fail(CodeInvalidHandle, "Invalid stream handle: %d", stream)
	}
	ref.release()
	c.service.logger.Info("stream shut down", "stream", stream)
	return CodeSuccess
}

// LastError copies the calling thread's pending diagnostic into
// buffer. It does not clear the slot. With nothing pending it writes
// an empty string and returns CodeGeneric. An unusable buffer returns
// CodeInvalidParam and leaves the pending message in place.
func (c Caller) LastError(buffer unsafe.Pointer, size uintptr) Code {
	message, ok := c.service.errors.Get(c.thread)
	if err := writeText(buffer, size, message); err != nil {
		return CodeInvalidParam
	}
	if !ok {
		return CodeGeneric
	}
	return CodeSuccess
}

// ChannelName copies writer's channel name into buffer.
func (c Caller) ChannelName(writer uint64, buffer unsafe.Pointer, size uintptr) Code {
	c.clear()
	state, ok := c.service.writers.Get(writer)
	if !ok {
		return c.fail(CodeInvalidHandle, "Invalid writer handle: %d", writer)
	}
	if err := writeText(buffer, size, state.descriptor.Name()); err != nil {
		return c.fail(CodeInvalidParam, "Invalid output buffer: %v", err)
	}
	return CodeSuccess
}

// Version copies the library version into buffer.
func (c Caller) Version(buffer unsafe.Pointer, size uintptr) Code {
	c.clear()
	if err := writeText(buffer, size, version.Short()); err != nil {
		return c.fail(CodeInvalidParam, "Invalid output buffer: %v", err)
	}
	return CodeSuccess
}
