// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that a broken concurrency test fails with a message
// instead of hanging the test binary. They are the only place in the
// test suite that waits on the wall clock.
//
// [TempPath] returns a path inside a per-test temporary directory for
// fallback files and databases.
//
// All helpers call Fatalf on failure: test setup problems are not
// recoverable.
package testutil
