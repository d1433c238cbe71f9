// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
	"github.com/bureau-foundation/nominal-ffi/lib/clock"
	"github.com/bureau-foundation/nominal-ffi/lib/codec"
)

// Builder assembles a Stream. Configure a destination with
// StreamToCore (optionally plus WithFileFallback) or StreamToFile,
// then call Build. A Builder is single-use.
type Builder struct {
	token        *Token
	resource     ResourceID
	core         bool
	fallbackPath string
	filePath     string
	options      Options
	clock        clock.Clock
	logger       *slog.Logger
	client       *http.Client
}

// NewBuilder returns a Builder with DefaultOptions, the real clock,
// and a discarding logger.
func NewBuilder() *Builder {
	return &Builder{
		options: DefaultOptions(),
		clock:   clock.Real(),
		logger:  slog.New(slog.DiscardHandler),
	}
}

// StreamToCore delivers to the core ingestion service for resource,
// authenticating with token. The stream takes ownership of token and
// zeros it on Close, or when Build fails.
func (b *Builder) StreamToCore(token *Token, resource ResourceID) *Builder {
	b.token = token
	b.resource = resource
	b.core = true
	return b
}

// WithFileFallback adds a fallback destination used when the core
// rejects a batch. Only meaningful together with StreamToCore.
func (b *Builder) WithFileFallback(path string) *Builder {
	b.fallbackPath = path
	return b
}

// StreamToFile delivers only to a local fallback destination.
func (b *Builder) StreamToFile(path string) *Builder {
	b.filePath = path
	return b
}

// WithOptions replaces the stream options.
func (b *Builder) WithOptions(options Options) *Builder {
	b.options = options
	return b
}

// WithClock replaces the clock driving timestamps and the flush loop.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	b.clock = clk
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithHTTPClient replaces the ingestion HTTP client. The default is a
// client with Options.RequestTimeout.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.client = client
	return b
}

// Build opens the destinations and starts the flush loop.
func (b *Builder) Build(ctx context.Context) (*Stream, error) {
	if b.options.FlushThresholdBytes <= 0 || b.options.BufferMaxBytes <= 0 {
		b.release()
		return nil, fmt.Errorf("engine: flush threshold and buffer size must be positive")
	}
	if b.options.BufferMaxBytes > codec.MaxRawSize {
		b.release()
		return nil, fmt.Errorf("engine: buffer size %d exceeds the %d byte batch limit", b.options.BufferMaxBytes, codec.MaxRawSize)
	}

	session := uuid.New().String()
	logger := b.logger.With("session", session)

	var primary, fallback Sink
	switch {
	case b.core:
		client := b.client
		if client == nil {
			client = &http.Client{Timeout: b.options.RequestTimeout}
		}
		core, err := newCoreSink(client, b.options, b.token, b.resource, session)
		if err != nil {
			b.release()
			return nil, err
		}
		primary = core
		if b.fallbackPath != "" {
			fallback, err = openFallback(ctx, b.fallbackPath, b.options, logger)
			if err != nil {
				primary.Close()
				return nil, err
			}
		}

	case b.filePath != "":
		var err error
		primary, err = openFallback(ctx, b.filePath, b.options, logger)
		if err != nil {
			return nil, err
		}

	default:
		return nil, ErrNoDestination
	}

	stream := newStream(session, b.resource.String(), b.options, b.clock, logger, primary, fallback)
	logger.Info("stream started",
		"destination", primary.Describe(),
		"fallback", describeOptional(fallback),
	)
	return stream, nil
}

func (b *Builder) release() {
	if b.token != nil {
		b.token.Close()
	}
}

func openFallback(ctx context.Context, path string, options Options, logger *slog.Logger) (Sink, error) {
	if IsDatabasePath(path) {
		return openDatabaseSink(ctx, path, options, logger)
	}
	return openFileSink(path, options)
}

func describeOptional(sink Sink) string {
	if sink == nil {
		return ""
	}
	return sink.Describe()
}

// Stream batches samples and delivers them. All methods are safe for
// concurrent use.
type Stream struct {
	session  string
	resource string
	options  Options
	clock    clock.Clock
	logger   *slog.Logger

	accumulator *Accumulator
	buffer      *Buffer
	primary     Sink
	fallback    Sink

	// lifecycle guards closed. Pushes hold it shared so Close cannot
	// slip between the closed check and the accumulator append.
	lifecycle sync.RWMutex
	closed    bool

	// flushMu serializes flushes so each delivery pass sees the
	// buffer's head entry undisturbed.
	flushMu   sync.Mutex
	delivered atomic.Uint64
	diverted  atomic.Uint64

	// losses collects discards until an explicit Flush or Close
	// reports them. Background flushes can only log.
	lossMu      sync.Mutex
	losses      []error
	lostSamples atomic.Uint64

	flushRequests chan struct{}
	stop          chan struct{}
	done          chan struct{}
}

func newStream(session, resource string, options Options, clk clock.Clock, logger *slog.Logger, primary, fallback Sink) *Stream {
	stream := &Stream{
		session:       session,
		resource:      resource,
		options:       options,
		clock:         clk,
		logger:        logger,
		accumulator:   NewAccumulator(session, resource, options.FlushThresholdBytes),
		buffer:        NewBuffer(options.BufferMaxBytes),
		primary:       primary,
		fallback:      fallback,
		flushRequests: make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go stream.run()
	return stream
}

// Session returns the random session id of this stream.
func (s *Stream) Session() string { return s.session }

// Float64Writer returns a writer for float64 samples.
func (s *Stream) Float64Writer(descriptor channel.Descriptor) *ChannelWriter[float64] {
	return NewChannelWriter[float64](s, descriptor)
}

// Int64Writer returns a writer for int64 samples.
func (s *Stream) Int64Writer(descriptor channel.Descriptor) *ChannelWriter[int64] {
	return NewChannelWriter[int64](s, descriptor)
}

// BoolWriter returns a writer for bool samples.
func (s *Stream) BoolWriter(descriptor channel.Descriptor) *ChannelWriter[bool] {
	return NewChannelWriter[bool](s, descriptor)
}

// StringWriter returns a writer for string samples.
func (s *Stream) StringWriter(descriptor channel.Descriptor) *ChannelWriter[string] {
	return NewChannelWriter[string](s, descriptor)
}

func (s *Stream) push(descriptor channel.Descriptor, kind Kind, timestamp int64, value any) error {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	if s.closed {
		return ErrStreamClosed
	}
	due, err := s.accumulator.Add(descriptor, kind, timestamp, value)
	if err != nil {
		return err
	}
	if due {
		select {
		case s.flushRequests <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush delivers everything pushed so far. When it returns nil every
// pending sample has been accepted by the primary destination or the
// fallback. Samples discarded since the previous Flush, whether by
// this call or by a background flush, are reported as ErrSamplesLost.
func (s *Stream) Flush(ctx context.Context) error {
	s.lifecycle.RLock()
	closed := s.closed
	s.lifecycle.RUnlock()
	if closed {
		return ErrStreamClosed
	}
	err := s.flush(ctx)
	return errors.Join(err, s.takeLosses())
}

func (s *Stream) flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if batch := s.accumulator.Flush(s.clock.Now().UnixNano()); batch != nil {
		if err := s.enqueue(ctx, batch); err != nil {
			return err
		}
	}
	return s.deliver(ctx)
}

// enqueue encodes batch into the delivery buffer. A batch that encodes
// larger than the buffer is split in half until every part fits; parts
// after the first take fresh sequence numbers so they stay in order.
// When the next part would not fit beside what is queued, the queue is
// delivered first. Only a single sample too large for the buffer, or
// parts queued after delivery failed, can be discarded. Callers hold
// flushMu. The error is the failed delivery, if any.
func (s *Stream) enqueue(ctx context.Context, batch *Batch) error {
	var deliverErr error
	pending := []*Batch{batch}
	queued := 0
	for len(pending) > 0 {
		next := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if queued > 0 {
			next.Sequence = s.accumulator.SequenceNumber()
		}

		data, err := codec.Marshal(next)
		if err != nil {
			s.recordLoss(next.SampleCount(), fmt.Errorf("engine: encoding batch %d: %w", next.Sequence, err))
			continue
		}
		if len(data) > s.options.BufferMaxBytes {
			head, tail := next.split()
			if tail == nil {
				s.recordLoss(1, fmt.Errorf("engine: sample on %q encodes to %d bytes, over the %d byte buffer",
					next.Series[0].Channel, len(data), s.options.BufferMaxBytes))
				continue
			}
			pending = append(pending, tail, head)
			continue
		}

		if deliverErr == nil && s.buffer.SizeBytes()+len(data) > s.options.BufferMaxBytes {
			deliverErr = s.deliver(ctx)
		}
		if queued > 0 {
			s.accumulator.reserveSequence()
		}
		queued++
		s.queue(data, next)
	}
	if queued > 1 {
		s.logger.Debug("oversized batch split",
			"sequence", batch.Sequence,
			"parts", queued,
		)
	}
	return deliverErr
}

func (s *Stream) queue(data []byte, batch *Batch) {
	droppedBefore := s.buffer.Dropped()
	if err := s.buffer.Push(data); err != nil {
		s.recordLoss(batch.SampleCount(), fmt.Errorf("engine: queueing batch %d: %w", batch.Sequence, err))
		return
	}
	if dropped := s.buffer.Dropped() - droppedBefore; dropped > 0 {
		s.logger.Warn("delivery buffer full, oldest batches dropped",
			"dropped", dropped,
			"buffer_bytes", s.buffer.SizeBytes(),
		)
		s.recordLoss(0, fmt.Errorf("engine: %d queued batches dropped to make room for batch %d", dropped, batch.Sequence))
	}
}

// recordLoss remembers a discard for the next Flush or Close to report.
// samples counts the discarded samples when they are known.
func (s *Stream) recordLoss(samples int, err error) {
	s.logger.Error("samples lost before delivery", "error", err)
	s.lostSamples.Add(uint64(samples))
	s.lossMu.Lock()
	s.losses = append(s.losses, err)
	s.lossMu.Unlock()
}

// takeLosses returns and forgets the discards recorded so far, wrapped
// in ErrSamplesLost, or nil when there were none.
func (s *Stream) takeLosses() error {
	s.lossMu.Lock()
	losses := s.losses
	s.losses = nil
	s.lossMu.Unlock()
	if len(losses) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSamplesLost, errors.Join(losses...))
}

func (s *Stream) deliver(ctx context.Context) error {
	for {
		data := s.buffer.Peek()
		if data == nil {
			return nil
		}

		if err := s.primary.Write(ctx, data); err != nil {
			if s.fallback == nil {
				return fmt.Errorf("engine: delivering to %s: %w", s.primary.Describe(), err)
			}
			if fallbackErr := s.fallback.Write(ctx, data); fallbackErr != nil {
				return fmt.Errorf("engine: delivering to %s failed (%v), fallback %s: %w",
					s.primary.Describe(), err, s.fallback.Describe(), fallbackErr)
			}
			s.logger.Warn("core ingestion failed, batch written to fallback",
				"error", err,
				"fallback", s.fallback.Describe(),
			)
			s.diverted.Add(1)
		} else {
			s.delivered.Add(1)
		}
		s.buffer.Pop()
	}
}

// run is the background flush loop: one flush per interval tick and
// one whenever a push crosses the size threshold.
func (s *Stream) run() {
	defer close(s.done)

	var ticks <-chan time.Time
	if s.options.FlushInterval > 0 {
		ticker := s.clock.NewTicker(s.options.FlushInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-s.stop:
			return
		case <-ticks:
			s.backgroundFlush("interval")
		case <-s.flushRequests:
			s.backgroundFlush("threshold")
		}
	}
}

func (s *Stream) backgroundFlush(reason string) {
	if err := s.flush(context.Background()); err != nil {
		s.logger.Warn("background flush failed, batches remain queued",
			"reason", reason,
			"error", err,
			"queued", s.buffer.Len(),
		)
	}
}

// Close stops the flush loop, flushes one last time, and releases the
// destinations. Pushes and flushes after Close return ErrStreamClosed.
// Close is idempotent; only the first call reports errors.
func (s *Stream) Close(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.closed {
		s.lifecycle.Unlock()
		return nil
	}
	s.closed = true
	s.lifecycle.Unlock()

	close(s.stop)
	<-s.done

	var errs []error
	if err := s.flush(ctx); err != nil {
		s.logger.Error("final flush failed, queued batches lost",
			"error", err,
			"queued", s.buffer.Len(),
		)
		errs = append(errs, err)
	}
	if err := s.takeLosses(); err != nil {
		errs = append(errs, err)
	}
	if err := s.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: closing %s: %w", s.primary.Describe(), err))
	}
	if s.fallback != nil {
		if err := s.fallback.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: closing %s: %w", s.fallback.Describe(), err))
		}
	}

	stats := s.Stats()
	s.logger.Info("stream closed",
		"delivered", stats.DeliveredBatches,
		"diverted", stats.DivertedBatches,
		"dropped", stats.DroppedBatches,
		"lost_samples", stats.LostSamples,
	)
	return errors.Join(errs...)
}

// Stats is a point-in-time snapshot of a stream's counters.
type Stats struct {
	PendingBytes     int
	NextSequence     uint64
	QueuedBatches    int
	QueuedBytes      int
	DroppedBatches   uint64
	DeliveredBatches uint64
	DivertedBatches  uint64

	// LostSamples counts samples discarded because they could not be
	// encoded or were too large for the delivery buffer. Batches
	// evicted by a full buffer are counted in DroppedBatches.
	LostSamples uint64
}

// Stats returns the stream's counters.
func (s *Stream) Stats() Stats {
	return Stats{
		PendingBytes:     s.accumulator.SizeBytes(),
		NextSequence:     s.accumulator.SequenceNumber(),
		QueuedBatches:    s.buffer.Len(),
		QueuedBytes:      s.buffer.SizeBytes(),
		DroppedBatches:   s.buffer.Dropped(),
		DeliveredBatches: s.delivered.Load(),
		DivertedBatches:  s.diverted.Load(),
		LostSamples:      s.lostSamples.Load(),
	}
}
