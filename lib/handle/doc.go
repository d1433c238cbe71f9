// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package handle provides the opaque integer handles that the C
// boundary hands out in place of Go pointers.
//
// An [Allocator] issues handle values 1, 2, 3, ... for one handle
// class. Values are never reused for the lifetime of the allocator, so
// an operation on a stale handle fails deterministically as "not
// found" instead of reaching a newer, unrelated object that happened to
// recycle the same number.
//
// A [Registry] maps live handles to shared references. Lookups copy the
// reference out under the registry lock and return it; the caller uses
// the object after the lock is released, so long-running work (a batch
// push, a flush) never holds the registry lock.
//
//	var ids handle.Allocator
//	streams := handle.NewRegistry[*Stream]()
//
//	id := ids.Next()
//	streams.Insert(id, stream)
//	if stream, ok := streams.Get(id); ok { ... }
//	streams.Remove(id)
//
// Both types are safe for concurrent use.
package handle
