// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lasterror

import "sync"

// Thread identifies a calling OS thread for as long as it lives. The
// C library draws a fresh token per thread and never reuses one, so a
// thread started after another exited cannot inherit its slot even
// when the kernel recycles the thread id.
type Thread uint64

// Slots stores at most one pending message per thread.
type Slots struct {
	mu       sync.Mutex
	messages map[Thread]string
}

// NewSlots creates an empty set of slots.
func NewSlots() *Slots {
	return &Slots{messages: make(map[Thread]string)}
}

// Set stores message as the pending diagnostic for thread, replacing
// any previous one.
func (s *Slots) Set(thread Thread, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[thread] = message
}

// Clear removes the pending diagnostic for thread, if any.
func (s *Slots) Clear(thread Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, thread)
}

// Forget drops the slot of a thread that has exited. Its token is
// never issued again, so nothing else would remove the entry.
func (s *Slots) Forget(thread Thread) {
	s.Clear(thread)
}

// Get returns the pending diagnostic for thread. Reading does not
// clear the slot.
func (s *Slots) Get(thread Thread) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[thread]
	return message, ok
}

// Pending returns the number of threads holding a message.
func (s *Slots) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
