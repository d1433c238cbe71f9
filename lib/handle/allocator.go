// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import "sync"

// Allocator issues strictly increasing handle values starting at 1.
// The zero value is ready to use. Zero is never issued, so callers can
// treat a zero handle as "no handle".
type Allocator struct {
	mu   sync.Mutex
	last uint64
}

// Next returns a handle value greater than every value previously
// returned by this allocator. Concurrent callers never receive the
// same value. Exhausting the 64-bit range is not handled: at one
// allocation per nanosecond it takes centuries.
func (a *Allocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last++
	return a.last
}

// Last returns the most recently issued value, or 0 if Next has never
// been called.
func (a *Allocator) Last() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
