// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// DefaultWorkers is the pool size used when a non-positive count is
// requested.
const DefaultWorkers = 4

// ErrClosed is returned by Call after Close.
var ErrClosed = errors.New("bridge: closed")

// Bridge is a fixed-size worker pool reached through Call.
type Bridge struct {
	workers int
	logger  *slog.Logger

	// ctx is passed to every unit of work. It is cancelled only by
	// Close, which the exported library never calls.
	ctx    context.Context
	cancel context.CancelFunc

	// submitMu guards tasks against send-after-close: Call holds the
	// read lock while sending, Close takes the write lock before
	// closing the channel.
	submitMu sync.RWMutex
	closed   bool
	tasks    chan func()

	running sync.WaitGroup
}

// New starts a Bridge with the given number of workers. A nil logger
// discards panic reports.
func New(workers int, logger *slog.Logger) *Bridge {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	bridge := &Bridge{
		workers: workers,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(chan func()),
	}
	for i := 0; i < workers; i++ {
		bridge.running.Add(1)
		go bridge.work()
	}
	return bridge
}

func (b *Bridge) work() {
	defer b.running.Done()
	for task := range b.tasks {
		task()
	}
}

// Workers returns the pool size.
func (b *Bridge) Workers() int { return b.workers }

// Close stops accepting work, cancels the context handed to running
// work, and waits for the workers to exit.
func (b *Bridge) Close() {
	b.submitMu.Lock()
	if b.closed {
		b.submitMu.Unlock()
		return
	}
	b.closed = true
	close(b.tasks)
	b.submitMu.Unlock()

	b.cancel()
	b.running.Wait()
}

type result[T any] struct {
	value T
	err   error
}

// Call runs work on the pool and blocks until it returns. A panic in
// work is recovered and returned as an error; the worker survives.
func Call[T any](b *Bridge, work func(ctx context.Context) (T, error)) (T, error) {
	done := make(chan result[T], 1)
	task := func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				b.logger.Error("bridge: work panicked",
					"panic", recovered,
					"stack", string(debug.Stack()),
				)
				var zero T
				done <- result[T]{value: zero, err: fmt.Errorf("bridge: work panicked: %v", recovered)}
			}
		}()
		value, err := work(b.ctx)
		done <- result[T]{value: value, err: err}
	}

	b.submitMu.RLock()
	if b.closed {
		b.submitMu.RUnlock()
		var zero T
		return zero, ErrClosed
	}
	b.tasks <- task
	b.submitMu.RUnlock()

	outcome := <-done
	return outcome.value, outcome.err
}

// Do is Call for work that produces no value.
func Do(b *Bridge, work func(ctx context.Context) error) error {
	_, err := Call(b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	})
	return err
}
