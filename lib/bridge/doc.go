// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge lets synchronous callers run asynchronous work to
// completion on a fixed pool of background workers.
//
// The C boundary is synchronous: a foreign thread calls in and expects
// a status code back. Stream construction and flush are context-driven
// operations that may wait on the network or the disk. [Call] hands
// such a unit of work to the pool and blocks the calling thread until
// the work returns, delivering its result synchronously.
//
// The pool size is fixed at construction and is independent of the
// number of calling threads. Calls from different threads on different
// streams make progress independently; the pool itself never
// serializes them beyond its worker count.
//
// There is no cancellation and no timeout: once submitted, a call runs
// until the work returns. Work must not call back into the same Bridge
// (a pool whose workers all wait on the pool cannot make progress).
package bridge
