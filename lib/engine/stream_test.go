// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
	"github.com/bureau-foundation/nominal-ffi/lib/clock"
	"github.com/bureau-foundation/nominal-ffi/lib/codec"
	"github.com/bureau-foundation/nominal-ffi/lib/logging"
	"github.com/bureau-foundation/nominal-ffi/lib/testutil"
)

// recordingSink records every batch written to it. The written
// channel signals after each Write so tests can wait for background
// flushes without polling. A non-nil hold blocks every Write until it
// is closed.
type recordingSink struct {
	mu      sync.Mutex
	batches []Batch
	sizes   []int
	fail    error
	closed  bool
	hold    chan struct{}
	written chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{written: make(chan struct{}, 1024)}
}

func (s *recordingSink) Write(_ context.Context, data []byte) error {
	if s.hold != nil {
		<-s.hold
	}
	s.mu.Lock()
	if s.fail != nil {
		err := s.fail
		s.mu.Unlock()
		return err
	}
	var batch Batch
	if err := codec.Unmarshal(data, &batch); err != nil {
		s.mu.Unlock()
		return err
	}
	s.batches = append(s.batches, batch)
	s.sizes = append(s.sizes, len(data))
	s.mu.Unlock()
	s.written <- struct{}{}
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Describe() string { return "recording" }

func (s *recordingSink) snapshot() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Batch(nil), s.batches...)
}

func (s *recordingSink) encodedSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.sizes...)
}

func (s *recordingSink) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// float64Samples flattens the float64 samples of every batch on
// channel name, in delivery order.
func float64Samples(batches []Batch, name string) []float64 {
	var values []float64
	for _, batch := range batches {
		for _, series := range batch.Series {
			if series.Channel == name {
				values = append(values, series.Float64s...)
			}
		}
	}
	return values
}

func requireSequential(t *testing.T, batches []Batch) {
	t.Helper()
	for i := 1; i < len(batches); i++ {
		if batches[i].Sequence != batches[i-1].Sequence+1 {
			t.Fatalf("batch %d has sequence %d after %d", i, batches[i].Sequence, batches[i-1].Sequence)
		}
	}
}

func TestStreamToFileEndToEnd(t *testing.T) {
	ctx := context.Background()
	path := testutil.TempPath(t, "run.nominal")

	stream, err := NewBuilder().StreamToFile(path).WithOptions(testOptions("http://unused")).Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	writer := stream.Float64Writer(channel.Parse("temp", "unit=C"))
	if err := writer.Push(1000*time.Nanosecond, 21.5); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := stream.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	batches, err := ReadFallbackFile(path)
	if err != nil {
		t.Fatalf("ReadFallbackFile: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("read %d batches, want 1", len(batches))
	}
	series := batches[0].Series[0]
	if batches[0].Session != stream.Session() || series.Channel != "temp" || series.Timestamps[0] != 1000 || series.Float64s[0] != 21.5 {
		t.Fatalf("batch = %+v", batches[0])
	}
}

func TestStreamToDatabase(t *testing.T) {
	ctx := context.Background()
	path := testutil.TempPath(t, "run.sqlite")

	stream, err := NewBuilder().StreamToFile(path).WithOptions(testOptions("http://unused")).Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	stream.BoolWriter(channel.Parse("valve", "")).Push(1, true)
	stream.StringWriter(channel.Parse("state", "")).Push(2, "armed")
	if err := stream.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	batches, err := ReadFallbackDatabase(ctx, path)
	if err != nil {
		t.Fatalf("ReadFallbackDatabase: %v", err)
	}
	if len(batches) != 1 || batches[0].SampleCount() != 2 {
		t.Fatalf("batches = %+v", batches)
	}
}

func TestStreamCoreDelivery(t *testing.T) {
	ctx := context.Background()
	server := newIngestServer(t)
	resource, _ := ParseResourceID("ri.catalog.main.dataset.run")

	stream, err := NewBuilder().
		StreamToCore(testToken(t), resource).
		WithOptions(testOptions(server.URL)).
		WithHTTPClient(server.Client()).
		Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer stream.Close(ctx)

	stream.Int64Writer(channel.Parse("count", "")).Push(5, 42)
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	received := server.received()
	if len(received) != 1 || received[0].Resource != "ri.catalog.main.dataset.run" || received[0].Series[0].Int64s[0] != 42 {
		t.Fatalf("server received %+v", received)
	}
	if stats := stream.Stats(); stats.DeliveredBatches != 1 || stats.QueuedBatches != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestStreamDivertsToFallbackWhenCoreFails(t *testing.T) {
	ctx := context.Background()
	server := newIngestServer(t)
	server.failNext(1)
	resource, _ := ParseResourceID("ri.catalog.main.dataset.run")
	path := testutil.TempPath(t, "fallback.nominal")

	stream, err := NewBuilder().
		StreamToCore(testToken(t), resource).
		WithFileFallback(path).
		WithOptions(testOptions(server.URL)).
		WithHTTPClient(server.Client()).
		WithLogger(logging.Discard()).
		Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	stream.Float64Writer(channel.Parse("temp", "")).Push(1, 1.5)
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("Flush should succeed through the fallback: %v", err)
	}
	if stats := stream.Stats(); stats.DivertedBatches != 1 || stats.QueuedBatches != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	// The core recovers; later batches go to it again.
	stream.Float64Writer(channel.Parse("temp", "")).Push(2, 2.5)
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := stream.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fallback, err := ReadFallbackFile(path)
	if err != nil {
		t.Fatalf("ReadFallbackFile: %v", err)
	}
	if len(fallback) != 1 || fallback[0].Series[0].Float64s[0] != 1.5 {
		t.Fatalf("fallback = %+v", fallback)
	}
	if core := server.received(); len(core) != 1 || core[0].Sequence != 1 {
		t.Fatalf("core received %+v", core)
	}
}

func TestStreamCoreFailureWithoutFallbackKeepsBatch(t *testing.T) {
	ctx := context.Background()
	server := newIngestServer(t)
	server.failNext(1)
	resource, _ := ParseResourceID("ri.catalog.main.dataset.run")

	stream, err := NewBuilder().
		StreamToCore(testToken(t), resource).
		WithOptions(testOptions(server.URL)).
		WithHTTPClient(server.Client()).
		Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer stream.Close(ctx)

	stream.Float64Writer(channel.Parse("temp", "")).Push(1, 1.5)
	if err := stream.Flush(ctx); err == nil {
		t.Fatal("Flush succeeded although the core rejected the batch")
	}
	if stats := stream.Stats(); stats.QueuedBatches != 1 {
		t.Fatalf("stats = %+v, want the batch still queued", stats)
	}

	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if core := server.received(); len(core) != 1 || core[0].Sequence != 0 {
		t.Fatalf("core received %+v", core)
	}
}

func TestStreamPeriodicFlush(t *testing.T) {
	fake := clock.Fake(time.Unix(1700000000, 0))
	sink := newRecordingSink()
	options := testOptions("http://unused")
	options.FlushInterval = time.Second

	stream := newStream("s", "", options, fake, logging.Discard(), sink, nil)
	defer stream.Close(context.Background())

	stream.Float64Writer(channel.Parse("temp", "")).Push(1, 1)
	fake.WaitForTickers(1)
	fake.Advance(time.Second)

	testutil.RequireReceive(t, sink.written, 5*time.Second, "periodic flush")
	batches := sink.snapshot()
	if len(batches) != 1 || batches[0].CreatedAt != fake.Now().UnixNano() {
		t.Fatalf("batches = %+v", batches)
	}
}

func TestStreamThresholdFlush(t *testing.T) {
	sink := newRecordingSink()
	options := testOptions("http://unused")
	options.FlushThresholdBytes = 64

	stream := newStream("s", "", options, clock.Real(), logging.Discard(), sink, nil)
	defer stream.Close(context.Background())

	writer := stream.Float64Writer(channel.Parse("temp", ""))
	for i := 0; i < 10; i++ {
		if err := writer.Push(time.Duration(i), float64(i)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	testutil.RequireReceive(t, sink.written, 5*time.Second, "threshold flush")
}

func TestStreamClosed(t *testing.T) {
	ctx := context.Background()
	sink := newRecordingSink()
	stream := newStream("s", "", testOptions("http://unused"), clock.Real(), logging.Discard(), sink, nil)

	stream.Float64Writer(channel.Parse("temp", "")).Push(1, 1)
	if err := stream.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sink.snapshot()) != 1 {
		t.Fatal("Close did not flush pending samples")
	}
	if !sink.closed {
		t.Fatal("Close did not close the sink")
	}

	if err := stream.Float64Writer(channel.Parse("temp", "")).Push(2, 2); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Push after Close = %v, want ErrStreamClosed", err)
	}
	if err := stream.Flush(ctx); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Flush after Close = %v, want ErrStreamClosed", err)
	}
	if err := stream.Close(ctx); err != nil {
		t.Fatalf("second Close = %v", err)
	}
}

func TestStreamCloseReportsFinalFlushFailure(t *testing.T) {
	sink := newRecordingSink()
	sink.fail = errors.New("disk gone")
	stream := newStream("s", "", testOptions("http://unused"), clock.Real(), logging.Discard(), sink, nil)

	stream.Float64Writer(channel.Parse("temp", "")).Push(1, 1)
	if err := stream.Close(context.Background()); err == nil {
		t.Fatal("Close succeeded although the final flush failed")
	}
}

func TestBuildWithoutDestination(t *testing.T) {
	if _, err := NewBuilder().Build(context.Background()); !errors.Is(err, ErrNoDestination) {
		t.Fatalf("Build error = %v, want ErrNoDestination", err)
	}
}

func TestBuildRejectsBufferAboveBatchLimit(t *testing.T) {
	options := testOptions("http://unused")
	options.BufferMaxBytes = codec.MaxRawSize + 1
	_, err := NewBuilder().StreamToFile(testutil.TempPath(t, "big.nominal")).WithOptions(options).Build(context.Background())
	if err == nil {
		t.Fatal("Build accepted a buffer larger than a readable batch")
	}
}

func TestBuildFallbackInUse(t *testing.T) {
	ctx := context.Background()
	path := testutil.TempPath(t, "shared.nominal")

	first, err := NewBuilder().StreamToFile(path).Build(ctx)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	defer first.Close(ctx)

	if _, err := NewBuilder().StreamToFile(path).Build(ctx); !errors.Is(err, ErrFallbackOpen) {
		t.Fatalf("second Build error = %v, want ErrFallbackOpen", err)
	}
}

func TestStreamSplitsBatchLargerThanBuffer(t *testing.T) {
	ctx := context.Background()
	sink := newRecordingSink()
	options := testOptions("http://unused")
	options.FlushThresholdBytes = 1 << 30
	options.BufferMaxBytes = 4096

	stream := newStream("s", "", options, clock.Real(), logging.Discard(), sink, nil)
	defer stream.Close(ctx)

	writer := stream.Float64Writer(channel.Parse("temp", ""))
	for i := 0; i < 2000; i++ {
		if err := writer.Push(time.Duration(i)*time.Millisecond, float64(i)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	batches := sink.snapshot()
	if len(batches) < 2 {
		t.Fatalf("delivered %d batches, want the oversized batch split", len(batches))
	}
	requireSequential(t, batches)
	for i, size := range sink.encodedSizes() {
		if size > options.BufferMaxBytes {
			t.Errorf("batch %d is %d bytes, over the %d byte buffer", i, size, options.BufferMaxBytes)
		}
	}
	values := float64Samples(batches, "temp")
	if len(values) != 2000 {
		t.Fatalf("delivered %d samples, want 2000", len(values))
	}
	for i, value := range values {
		if value != float64(i) {
			t.Fatalf("sample %d = %v, want %d", i, value, i)
		}
	}
	if stats := stream.Stats(); stats.LostSamples != 0 || stats.DroppedBatches != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestStreamDeliversSamplesPushedWhileSinkBlocked(t *testing.T) {
	ctx := context.Background()
	sink := newRecordingSink()
	sink.hold = make(chan struct{})
	options := testOptions("http://unused")
	options.FlushThresholdBytes = 1024
	options.BufferMaxBytes = 4096

	stream := newStream("s", "", options, clock.Real(), logging.Discard(), sink, nil)
	defer stream.Close(ctx)

	writer := stream.Float64Writer(channel.Parse("temp", ""))
	for i := 0; i < 2000; i++ {
		if err := writer.Push(time.Duration(i)*time.Millisecond, float64(i)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	close(sink.hold)

	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("second Flush: %v", err)
	}

	batches := sink.snapshot()
	requireSequential(t, batches)
	if values := float64Samples(batches, "temp"); len(values) != 2000 {
		t.Fatalf("delivered %d samples, want 2000", len(values))
	}
}

func TestStreamFlushReportsOversizedSample(t *testing.T) {
	ctx := context.Background()
	sink := newRecordingSink()
	options := testOptions("http://unused")
	options.BufferMaxBytes = 256

	stream := newStream("s", "", options, clock.Real(), logging.Discard(), sink, nil)
	defer stream.Close(ctx)

	stream.Float64Writer(channel.Parse("temp", "")).Push(1, 1.5)
	stream.StringWriter(channel.Parse("log", "")).Push(2, strings.Repeat("x", 1024))

	err := stream.Flush(ctx)
	if !errors.Is(err, ErrSamplesLost) {
		t.Fatalf("Flush = %v, want ErrSamplesLost", err)
	}
	if values := float64Samples(sink.snapshot(), "temp"); len(values) != 1 || values[0] != 1.5 {
		t.Fatalf("temp samples = %v, want the small sample delivered", values)
	}
	if stats := stream.Stats(); stats.LostSamples != 1 {
		t.Fatalf("LostSamples = %d, want 1", stats.LostSamples)
	}

	// The loss is reported once.
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("second Flush = %v, want nil", err)
	}
}

func TestStreamFlushReportsEvictedBatches(t *testing.T) {
	ctx := context.Background()
	sink := newRecordingSink()
	sink.setFail(errors.New("offline"))
	options := testOptions("http://unused")
	options.BufferMaxBytes = 512

	stream := newStream("s", "", options, clock.Real(), logging.Discard(), sink, nil)
	defer stream.Close(ctx)

	writer := stream.Float64Writer(channel.Parse("temp", ""))
	writer.Push(1, 1)
	if err := stream.Flush(ctx); err == nil || errors.Is(err, ErrSamplesLost) {
		t.Fatalf("first Flush = %v, want only the delivery failure", err)
	}

	for i := 0; i < 40; i++ {
		writer.Push(time.Duration(i+2), float64(i+2))
	}
	if err := stream.Flush(ctx); !errors.Is(err, ErrSamplesLost) {
		t.Fatalf("second Flush = %v, want ErrSamplesLost for the evicted batch", err)
	}
	if stats := stream.Stats(); stats.DroppedBatches == 0 {
		t.Fatalf("stats = %+v, want a dropped batch", stats)
	}

	sink.setFail(nil)
	if err := stream.Flush(ctx); err != nil {
		t.Fatalf("Flush after recovery = %v", err)
	}
}

func TestStreamCloseReportsLosses(t *testing.T) {
	sink := newRecordingSink()
	options := testOptions("http://unused")
	options.BufferMaxBytes = 128

	stream := newStream("s", "", options, clock.Real(), logging.Discard(), sink, nil)
	stream.StringWriter(channel.Parse("log", "")).Push(1, strings.Repeat("x", 512))
	if err := stream.Close(context.Background()); !errors.Is(err, ErrSamplesLost) {
		t.Fatalf("Close = %v, want ErrSamplesLost", err)
	}
}
