// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

// libnominal is the C shared library for streaming telemetry to
// Nominal. Build it with:
//
//	go build -buildmode=c-shared -o libnominal.so ./cmd/libnominal
//
// The library targets Linux: thread tracking uses pthread keys, the
// fallback file uses flock, and tokens live in mlocked memory excluded
// from core dumps.
//
// The public interface is declared in nominal.h. Every function
// returns a status code; the reason for a failure is read back on the
// same thread with nominal_get_last_error.
package main

/*
#include <stddef.h>
#include <stdint.h>
*/
import "C"

import (
	"unsafe"

	"github.com/bureau-foundation/nominal-ffi/lib/ffi"
)

func main() {}

func status(code ffi.Code) C.int32_t {
	return C.int32_t(code)
}

//export nominal_init
func nominal_init(token, datasetRID, fallbackPath *C.char, outStreamHandle *C.uint64_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.Init(unsafe.Pointer(token), unsafe.Pointer(datasetRID), unsafe.Pointer(fallbackPath), unsafe.Pointer(outStreamHandle))
	}))
}

//export nominal_create_channel
func nominal_create_channel(streamHandle C.uint64_t, channelName, tags *C.char, outWriterHandle *C.uint64_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.CreateChannel(uint64(streamHandle), unsafe.Pointer(channelName), unsafe.Pointer(tags), unsafe.Pointer(outWriterHandle))
	}))
}

//export nominal_close_channel
func nominal_close_channel(writerHandle C.uint64_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.CloseChannel(uint64(writerHandle))
	}))
}

//export nominal_shutdown
func nominal_shutdown(streamHandle C.uint64_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.Shutdown(uint64(streamHandle))
	}))
}

//export nominal_get_last_error
func nominal_get_last_error(buffer *C.char, bufferSize C.size_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.LastError(unsafe.Pointer(buffer), uintptr(bufferSize))
	}))
}

//export nominal_push_double_batch
func nominal_push_double_batch(writerHandle C.uint64_t, timestamps *C.uint64_t, values *C.double, count C.size_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.PushFloat64(uint64(writerHandle), unsafe.Pointer(timestamps), unsafe.Pointer(values), uintptr(count))
	}))
}

//export nominal_push_int64_batch
func nominal_push_int64_batch(writerHandle C.uint64_t, timestamps *C.uint64_t, values *C.int64_t, count C.size_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.PushInt64(uint64(writerHandle), unsafe.Pointer(timestamps), unsafe.Pointer(values), uintptr(count))
	}))
}

//export nominal_push_bool_batch
func nominal_push_bool_batch(writerHandle C.uint64_t, timestamps *C.uint64_t, values *C.uint8_t, count C.size_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.PushBool(uint64(writerHandle), unsafe.Pointer(timestamps), unsafe.Pointer(values), uintptr(count))
	}))
}

//export nominal_push_string_batch
func nominal_push_string_batch(writerHandle C.uint64_t, timestamps *C.uint64_t, values **C.char, count C.size_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.PushString(uint64(writerHandle), unsafe.Pointer(timestamps), unsafe.Pointer(values), uintptr(count))
	}))
}

//export nominal_flush
func nominal_flush(streamHandle C.uint64_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.Flush(uint64(streamHandle))
	}))
}

//export nominal_flush_channel
func nominal_flush_channel(writerHandle C.uint64_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.FlushChannel(uint64(writerHandle))
	}))
}

//export nominal_get_active_streams
func nominal_get_active_streams() C.int32_t {
	return C.int32_t(current().ActiveStreams())
}

//export nominal_get_active_writers
func nominal_get_active_writers() C.int32_t {
	return C.int32_t(current().ActiveWriters())
}

//export nominal_is_stream_valid
func nominal_is_stream_valid(streamHandle C.uint64_t) C.int32_t {
	return C.int32_t(current().IsStreamValid(uint64(streamHandle)))
}

//export nominal_is_writer_valid
func nominal_is_writer_valid(writerHandle C.uint64_t) C.int32_t {
	return C.int32_t(current().IsWriterValid(uint64(writerHandle)))
}

//export nominal_get_channel_name
func nominal_get_channel_name(writerHandle C.uint64_t, buffer *C.char, bufferSize C.size_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.ChannelName(uint64(writerHandle), unsafe.Pointer(buffer), uintptr(bufferSize))
	}))
}

//export nominal_get_version
func nominal_get_version(buffer *C.char, bufferSize C.size_t) C.int32_t {
	c := caller()
	return status(c.Run(func() ffi.Code {
		return c.Version(unsafe.Pointer(buffer), uintptr(bufferSize))
	}))
}
