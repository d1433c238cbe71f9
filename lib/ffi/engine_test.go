// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"strings"
	"testing"
	"unsafe"

	"github.com/bureau-foundation/nominal-ffi/lib/engine"
	"github.com/bureau-foundation/nominal-ffi/lib/testutil"
)

func newEngineService(t *testing.T) *Service {
	t.Helper()
	return newEngineServiceWith(t, engineTestOptions())
}

func engineTestOptions() engine.Options {
	options := engine.DefaultOptions()
	options.FlushInterval = 0
	options.FallbackSync = false
	return options
}

func newEngineServiceWith(t *testing.T, options engine.Options) *Service {
	t.Helper()
	service := New(Config{
		Engine:        NewStreamEngine(options, nil, nil),
		TokenVariable: "NOMINAL_FFI_TEST_TOKEN",
	})
	t.Setenv("NOMINAL_FFI_TEST_TOKEN", "")
	t.Cleanup(service.Close)
	return service
}

func TestStreamEngineFileOnly(t *testing.T) {
	service := newEngineService(t)
	caller := service.Caller(testThread)
	path := testutil.TempPath(t, "capture.nominal")

	var stream uint64
	requireCode(t, caller, caller.Init(nil, cstr(""), cstr(path), unsafe.Pointer(&stream)), CodeSuccess)
	writer := createChannel(t, caller, stream, "temperature", "sensor=A")

	timestamps := []uint64{1000, 2000}
	values := []float64{21.5, 22}
	requireCode(t, caller, caller.PushFloat64(writer, unsafe.Pointer(&timestamps[0]), unsafe.Pointer(&values[0]), 2), CodeSuccess)
	requireCode(t, caller, caller.CloseChannel(writer), CodeSuccess)
	requireCode(t, caller, caller.Shutdown(stream), CodeSuccess)

	batches, err := engine.ReadFallbackFile(path)
	if err != nil {
		t.Fatalf("ReadFallbackFile: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1 from the final flush", len(batches))
	}
	series := batches[0].Series
	if len(series) != 1 || series[0].Channel != "temperature" {
		t.Fatalf("series = %+v", series)
	}
	if got := series[0].Float64s; len(got) != 2 || got[0] != 21.5 || got[1] != 22 {
		t.Errorf("values = %v", got)
	}
	if got := series[0].Timestamps; got[0] != 1000 || got[1] != 2000 {
		t.Errorf("timestamps = %v", got)
	}
}

func TestStreamEngineDatabaseFallback(t *testing.T) {
	service := newEngineService(t)
	caller := service.Caller(testThread)
	path := testutil.TempPath(t, "capture.sqlite")

	var stream uint64
	requireCode(t, caller, caller.Init(nil, cstr(""), cstr(path), unsafe.Pointer(&stream)), CodeSuccess)
	writer := createChannel(t, caller, stream, "status", "")

	timestamps := []uint64{1}
	values := []unsafe.Pointer{cstr("armed")}
	requireCode(t, caller, caller.PushString(writer, unsafe.Pointer(&timestamps[0]), unsafe.Pointer(&values[0]), 1), CodeSuccess)
	requireCode(t, caller, caller.Flush(stream), CodeSuccess)
	requireCode(t, caller, caller.Shutdown(stream), CodeSuccess)
	requireCode(t, caller, caller.CloseChannel(writer), CodeSuccess)

	batches, err := engine.ReadFallbackDatabase(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFallbackDatabase: %v", err)
	}
	if len(batches) != 1 || batches[0].SampleCount() != 1 {
		t.Fatalf("batches = %+v", batches)
	}
	if got := batches[0].Series[0].Strings; len(got) != 1 || got[0] != "armed" {
		t.Errorf("strings = %v", got)
	}
}

func TestStreamEngineRejectsResourceWithToken(t *testing.T) {
	service := newEngineService(t)
	caller := service.Caller(testThread)

	var stream uint64
	code := caller.Init(cstr("valid-token"), cstr("not-a-rid"), nil, unsafe.Pointer(&stream))
	requireCode(t, caller, code, CodeInvalidParam)
	if message, _ := lastError(t, caller); !strings.HasPrefix(message, "Invalid dataset RID") {
		t.Errorf("last error = %q", message)
	}
}

func TestStreamEngineRejectsMalformedToken(t *testing.T) {
	service := newEngineService(t)
	caller := service.Caller(testThread)

	var stream uint64
	code := caller.Init(cstr("has spaces"), cstr("ri.nominal.main.dataset.abc"), nil, unsafe.Pointer(&stream))
	requireCode(t, caller, code, CodeInvalidParam)
	if message, _ := lastError(t, caller); !strings.HasPrefix(message, "Invalid token") {
		t.Errorf("last error = %q", message)
	}
}

func TestStreamEngineFallbackInUseIsIOError(t *testing.T) {
	service := newEngineService(t)
	caller := service.Caller(testThread)
	path := testutil.TempPath(t, "shared.nominal")

	var first, second uint64
	requireCode(t, caller, caller.Init(nil, cstr(""), cstr(path), unsafe.Pointer(&first)), CodeSuccess)
	requireCode(t, caller, caller.Init(nil, cstr(""), cstr(path), unsafe.Pointer(&second)), CodeIO)
	if message, _ := lastError(t, caller); !strings.HasPrefix(message, "Failed to open fallback file") {
		t.Errorf("last error = %q", message)
	}
}

func TestStreamEngineFlushReportsLostSamples(t *testing.T) {
	options := engineTestOptions()
	options.BufferMaxBytes = 256
	service := newEngineServiceWith(t, options)
	caller := service.Caller(testThread)
	path := testutil.TempPath(t, "lossy.nominal")

	var stream uint64
	requireCode(t, caller, caller.Init(nil, cstr(""), cstr(path), unsafe.Pointer(&stream)), CodeSuccess)
	writer := createChannel(t, caller, stream, "log", "")

	timestamps := []uint64{1}
	values := []unsafe.Pointer{cstr(strings.Repeat("x", 1024))}
	requireCode(t, caller, caller.PushString(writer, unsafe.Pointer(&timestamps[0]), unsafe.Pointer(&values[0]), 1), CodeSuccess)
	requireCode(t, caller, caller.Flush(stream), CodeRuntime)
	if message, _ := lastError(t, caller); !strings.Contains(message, "samples lost") {
		t.Errorf("last error = %q", message)
	}

	// Reported once; the next flush has nothing to say.
	requireCode(t, caller, caller.Flush(stream), CodeSuccess)
}
