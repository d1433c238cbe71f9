// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import "sync"

// Registry maps handles to shared references of type T. T is normally
// a pointer type: the registry owns one reference, and every value
// returned by Get is another reference to the same object.
type Registry[T any] struct {
	mu      sync.Mutex
	entries map[uint64]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[uint64]T)}
}

// Insert stores value under handle. Handles come from an Allocator and
// are unique, so overwriting an existing entry is not an expected
// path; if it happens the previous reference is replaced.
func (r *Registry[T]) Insert(handle uint64, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[handle] = value
}

// Get returns the reference stored under handle. The entry stays in
// the registry. The second result is false if handle was never
// inserted or has already been removed.
func (r *Registry[T]) Get(handle uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.entries[handle]
	return value, ok
}

// Remove deletes handle and returns the reference the registry held.
// The second result is false if handle is not present. After Remove,
// every Get, Remove, or Contains on handle reports not found.
func (r *Registry[T]) Remove(handle uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.entries[handle]
	if ok {
		delete(r.entries, handle)
	}
	return value, ok
}

// Contains reports whether handle is currently registered.
func (r *Registry[T]) Contains(handle uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[handle]
	return ok
}

// Len returns the number of registered handles.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Drain removes every entry and returns the references the registry
// held, in no particular order.
func (r *Registry[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	values := make([]T, 0, len(r.entries))
	for handle, value := range r.entries {
		values = append(values, value)
		delete(r.entries, handle)
	}
	return values
}
