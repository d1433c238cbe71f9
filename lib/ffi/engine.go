// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
	"github.com/bureau-foundation/nominal-ffi/lib/clock"
	"github.com/bureau-foundation/nominal-ffi/lib/engine"
	"github.com/bureau-foundation/nominal-ffi/lib/secret"
)

// Engine builds streams. Construct runs on a bridge worker and may
// block on I/O.
type Engine interface {
	Construct(ctx context.Context, request StreamRequest) (Stream, error)
}

// StreamRequest carries the decoded Init arguments.
type StreamRequest struct {
	// Credential is the bearer token, or nil for a file-only stream.
	// Construct takes ownership and closes it on every path.
	Credential *secret.Buffer

	// Resource is the dataset resource identifier. It is only
	// interpreted when Credential is set.
	Resource string

	// FallbackPath is the file destination, or empty for none.
	FallbackPath string
}

// Stream is what the boundary needs from an engine stream.
type Stream interface {
	Float64Writer(descriptor channel.Descriptor) Writer[float64]
	Int64Writer(descriptor channel.Descriptor) Writer[int64]
	BoolWriter(descriptor channel.Descriptor) Writer[bool]
	StringWriter(descriptor channel.Descriptor) Writer[string]
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// Writer pushes single samples of one type. timestamp is the time
// since the Unix epoch.
type Writer[T any] interface {
	Push(timestamp time.Duration, value T) error
}

// StreamEngine is the production Engine backed by lib/engine.
type StreamEngine struct {
	options engine.Options
	clock   clock.Clock
	logger  *slog.Logger
}

// NewStreamEngine returns an Engine that builds lib/engine streams with
// the given options.
func NewStreamEngine(options engine.Options, clk clock.Clock, logger *slog.Logger) *StreamEngine {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamEngine{options: options, clock: clk, logger: logger}
}

// Construct builds a stream to core ingestion when a credential is
// present, with the fallback path as secondary destination, and a
// file-only stream otherwise.
func (e *StreamEngine) Construct(ctx context.Context, request StreamRequest) (Stream, error) {
	builder := engine.NewBuilder().
		WithOptions(e.options).
		WithClock(e.clock).
		WithLogger(e.logger)

	if request.Credential != nil {
		token, err := engine.TokenFromBuffer(request.Credential)
		if err != nil {
			return nil, err
		}
		resource, err := engine.ParseResourceID(request.Resource)
		if err != nil {
			token.Close()
			return nil, err
		}
		builder.StreamToCore(token, resource)
		if request.FallbackPath != "" {
			builder.WithFileFallback(request.FallbackPath)
		}
	} else {
		builder.StreamToFile(request.FallbackPath)
	}

	stream, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	return engineStream{stream: stream}, nil
}

// engineStream narrows the concrete writer types of *engine.Stream to
// the Writer interface.
type engineStream struct {
	stream *engine.Stream
}

func (s engineStream) Float64Writer(descriptor channel.Descriptor) Writer[float64] {
	return s.stream.Float64Writer(descriptor)
}

func (s engineStream) Int64Writer(descriptor channel.Descriptor) Writer[int64] {
	return s.stream.Int64Writer(descriptor)
}

func (s engineStream) BoolWriter(descriptor channel.Descriptor) Writer[bool] {
	return s.stream.BoolWriter(descriptor)
}

func (s engineStream) StringWriter(descriptor channel.Descriptor) Writer[string] {
	return s.stream.StringWriter(descriptor)
}

func (s engineStream) Flush(ctx context.Context) error { return s.stream.Flush(ctx) }

func (s engineStream) Close(ctx context.Context) error { return s.stream.Close(ctx) }
