// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sync"
)

// Buffer is a size-bounded FIFO of encoded batches awaiting delivery.
// When a Push would exceed the byte limit the oldest entries are
// dropped until the new one fits: a stream that cannot deliver loses
// old data rather than exhausting the host's memory.
//
// Thread-safe, though the stream only touches it while holding its
// flush lock, so Peek followed by Pop always refers to one entry.
type Buffer struct {
	mu        sync.Mutex
	entries   [][]byte
	totalSize int
	maxSize   int
	dropped   uint64
}

// NewBuffer creates a Buffer holding at most maxSize bytes. maxSize
// must be positive.
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		panic(fmt.Sprintf("buffer: maxSize must be positive, got %d", maxSize))
	}
	return &Buffer{maxSize: maxSize}
}

// Push appends an encoded batch, evicting the oldest entries as
// needed. An entry larger than the whole buffer is an error.
func (b *Buffer) Push(data []byte) error {
	size := len(data)
	if size > b.maxSize {
		return fmt.Errorf("buffer: entry size %d exceeds max buffer size %d", size, b.maxSize)
	}
	if size == 0 {
		return fmt.Errorf("buffer: refusing to push empty entry")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.totalSize+size > b.maxSize && len(b.entries) > 0 {
		b.totalSize -= len(b.entries[0])
		b.entries[0] = nil
		b.entries = b.entries[1:]
		b.dropped++
	}

	b.entries = append(b.entries, data)
	b.totalSize += size
	return nil
}

// Peek returns the oldest entry, or nil when empty.
func (b *Buffer) Peek() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[0]
}

// Pop removes the oldest entry. No-op when empty.
func (b *Buffer) Pop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return
	}
	b.totalSize -= len(b.entries[0])
	b.entries[0] = nil
	b.entries = b.entries[1:]
}

// Len returns the number of queued entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// SizeBytes returns the total size of queued entries.
func (b *Buffer) SizeBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSize
}

// Dropped returns how many entries have been evicted since creation.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
