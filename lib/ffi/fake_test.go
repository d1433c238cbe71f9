// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
	"github.com/bureau-foundation/nominal-ffi/lib/lasterror"
)

// sample is one value a fakeStream received.
type sample struct {
	channel   string
	tags      map[string]string
	timestamp time.Duration
	value     any
}

type fakeStream struct {
	mu       sync.Mutex
	samples  []sample
	flushes  int
	closes   int
	pushErr  error
	flushErr error
	closeErr error

	// holdClose, when set, blocks Close until it is closed.
	holdClose chan struct{}
}

func (s *fakeStream) record(descriptor channel.Descriptor, timestamp time.Duration, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.samples = append(s.samples, sample{
		channel:   descriptor.Name(),
		tags:      descriptor.TagMap(),
		timestamp: timestamp,
		value:     value,
	})
	return nil
}

func (s *fakeStream) snapshot() []sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sample(nil), s.samples...)
}

func (s *fakeStream) counts() (flushes, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes, s.closes
}

type fakeWriter[T any] struct {
	stream     *fakeStream
	descriptor channel.Descriptor
}

func (w fakeWriter[T]) Push(timestamp time.Duration, value T) error {
	return w.stream.record(w.descriptor, timestamp, value)
}

func (s *fakeStream) Float64Writer(descriptor channel.Descriptor) Writer[float64] {
	return fakeWriter[float64]{stream: s, descriptor: descriptor}
}

func (s *fakeStream) Int64Writer(descriptor channel.Descriptor) Writer[int64] {
	return fakeWriter[int64]{stream: s, descriptor: descriptor}
}

func (s *fakeStream) BoolWriter(descriptor channel.Descriptor) Writer[bool] {
	return fakeWriter[bool]{stream: s, descriptor: descriptor}
}

func (s *fakeStream) StringWriter(descriptor channel.Descriptor) Writer[string] {
	return fakeWriter[string]{stream: s, descriptor: descriptor}
}

func (s *fakeStream) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

func (s *fakeStream) Close(context.Context) error {
	if s.holdClose != nil {
		<-s.holdClose
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

// constructed records what one Construct call received.
type constructed struct {
	token        string
	resource     string
	fallbackPath string
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []constructed
	streams  []*fakeStream
	err      error
}

func (e *fakeEngine) Construct(_ context.Context, request StreamRequest) (Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	record := constructed{resource: request.Resource, fallbackPath: request.FallbackPath}
	if request.Credential != nil {
		record.token = string(request.Credential.Bytes())
		request.Credential.Close()
	}
	e.requests = append(e.requests, record)
	if e.err != nil {
		return nil, e.err
	}
	stream := &fakeStream{}
	e.streams = append(e.streams, stream)
	return stream, nil
}

func (e *fakeEngine) lastRequest(t *testing.T) constructed {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		t.Fatal("engine was never asked to construct a stream")
	}
	return e.requests[len(e.requests)-1]
}

func (e *fakeEngine) stream(t *testing.T, index int) *fakeStream {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if index >= len(e.streams) {
		t.Fatalf("engine built %d streams, want index %d", len(e.streams), index)
	}
	return e.streams[index]
}

// newTestService returns a service over a fake engine. The token
// variable is unique to the test so the process environment does not
// leak in.
func newTestService(t *testing.T) (*Service, *fakeEngine) {
	t.Helper()
	fake := &fakeEngine{}
	service := New(Config{Engine: fake, TokenVariable: "NOMINAL_FFI_TEST_TOKEN"})
	t.Setenv("NOMINAL_FFI_TEST_TOKEN", "")
	t.Cleanup(service.Close)
	return service, fake
}

// cstr returns a NUL-terminated copy of text.
func cstr(text string) unsafe.Pointer {
	data := append([]byte(text), 0)
	return unsafe.Pointer(&data[0])
}

func lastError(t *testing.T, caller Caller) (string, Code) {
	t.Helper()
	buffer := make([]byte, 512)
	code := caller.LastError(unsafe.Pointer(&buffer[0]), uintptr(len(buffer)))
	return goString(buffer), code
}

func goString(buffer []byte) string {
	for i, b := range buffer {
		if b == 0 {
			return string(buffer[:i])
		}
	}
	return string(buffer)
}

func requireCode(t *testing.T, caller Caller, got, want Code) {
	t.Helper()
	if got != want {
		message, _ := lastError(t, caller)
		t.Fatalf("got %v (%d), want %v (%d); last error %q", got, got, want, want, message)
	}
}

func initStream(t *testing.T, caller Caller) uint64 {
	t.Helper()
	var h uint64
	code := caller.Init(cstr("token-1"), cstr("ri.nominal.main.dataset.abc"), nil, unsafe.Pointer(&h))
	requireCode(t, caller, code, CodeSuccess)
	return h
}

func createChannel(t *testing.T, caller Caller, stream uint64, name, tags string) uint64 {
	t.Helper()
	var h uint64
	code := caller.CreateChannel(stream, cstr(name), cstr(tags), unsafe.Pointer(&h))
	requireCode(t, caller, code, CodeSuccess)
	return h
}

var testThread = lasterror.Thread(101)
