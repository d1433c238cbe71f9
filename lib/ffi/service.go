// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/nominal-ffi/lib/bridge"
	"github.com/bureau-foundation/nominal-ffi/lib/clock"
	"github.com/bureau-foundation/nominal-ffi/lib/config"
	"github.com/bureau-foundation/nominal-ffi/lib/engine"
	"github.com/bureau-foundation/nominal-ffi/lib/handle"
	"github.com/bureau-foundation/nominal-ffi/lib/lasterror"
)

// DefaultTokenVariable is the environment variable consulted for a
// bearer token when Init receives none.
const DefaultTokenVariable = "NOMINAL_TOKEN"

// Config holds the collaborators of a Service.
type Config struct {
	// Engine builds streams. Required.
	Engine Engine

	// Bridge runs blocking engine work. Nil starts one with
	// bridge.DefaultWorkers workers.
	Bridge *bridge.Bridge

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger

	// TokenVariable overrides DefaultTokenVariable.
	TokenVariable string
}

// Service is the state behind the C boundary.
type Service struct {
	engine        Engine
	bridge        *bridge.Bridge
	logger        *slog.Logger
	tokenVariable string

	errors *lasterror.Slots

	streamHandles handle.Allocator
	writerHandles handle.Allocator
	streams       *handle.Registry[*streamRef]
	writers       *handle.Registry[*writerState]
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Engine == nil {
		panic("ffi: Config.Engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.Bridge
	if workers == nil {
		workers = bridge.New(bridge.DefaultWorkers, logger)
	}
	tokenVariable := cfg.TokenVariable
	if tokenVariable == "" {
		tokenVariable = DefaultTokenVariable
	}
	logger.Debug("service started", "bridge_workers", workers.Workers())
	return &Service{
		engine:        cfg.Engine,
		bridge:        workers,
		logger:        logger,
		tokenVariable: tokenVariable,
		errors:        lasterror.NewSlots(),
		streams:       handle.NewRegistry[*streamRef](),
		writers:       handle.NewRegistry[*writerState](),
	}
}

// NewFromConfig builds a Service over lib/engine streams configured by
// cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	options, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Engine: NewStreamEngine(options, clock.Real(), logger),
		Bridge: bridge.New(cfg.Bridge.Workers, logger),
		Logger: logger,
	}), nil
}

// Caller binds the service to thread's error slot.
func (s *Service) Caller(thread lasterror.Thread) Caller {
	return Caller{service: s, thread: thread}
}

// ActiveStreams returns the number of live stream handles.
func (s *Service) ActiveStreams() int { return s.streams.Len() }

// ActiveWriters returns the number of live writer handles.
func (s *Service) ActiveWriters() int { return s.writers.Len() }

// IsStreamValid reports 1 if h names a live stream handle, else 0.
func (s *Service) IsStreamValid(h uint64) int32 {
	if s.streams.Contains(h) {
		return 1
	}
	return 0
}

// IsWriterValid reports 1 if h names a live writer handle, else 0.
func (s *Service) IsWriterValid(h uint64) int32 {
	if s.writers.Contains(h) {
		return 1
	}
	return 0
}

// ThreadExited discards the diagnostic slot of a host thread that has
// terminated.
func (s *Service) ThreadExited(thread lasterror.Thread) {
	s.errors.Forget(thread)
}

// Close releases every live handle, closing their streams, and stops
// the bridge. The exported library never calls it; tests do.
func (s *Service) Close() {
	s.logger.Debug("service closing",
		"streams_issued", s.streamHandles.Last(),
		"writers_issued", s.writerHandles.Last(),
		"streams_open", s.streams.Len(),
		"writers_open", s.writers.Len(),
		"pending_errors", s.errors.Pending(),
	)
	for _, state := range s.writers.Drain() {
		if ref := state.detach(); ref != nil {
			ref.release()
		}
	}
	for _, ref := range s.streams.Drain() {
		ref.release()
	}
	s.bridge.Close()
}

// finalizeStream closes an engine stream whose last reference was
// dropped. A failed close is logged; the handle is already gone.
func (s *Service) finalizeStream(stream Stream) {
	err := bridge.Do(s.bridge, func(ctx context.Context) error {
		return stream.Close(ctx)
	})
	if err != nil {
		s.logger.Error("stream close failed", "error", err)
		return
	}
	s.logger.Debug("stream closed")
}
