// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lasterror holds the "last error" diagnostic for each calling
// thread of the C boundary.
//
// C callers receive only an integer status code from each call. The
// human-readable reason is stored here, keyed by the OS thread that
// made the call, and read back by a separate accessor on the same
// thread. A message set by one thread is never visible to another.
//
// Every fallible boundary call clears its thread's slot on entry and
// sets it at most once before returning, so a stale message never
// leaks into a later, unrelated failure. Clear deletes the map entry:
// the map holds only threads that currently have a pending message.
//
// A [Thread] is a token the C library keeps in thread-local storage.
// Its destructor reports the token when the thread exits, and the
// library then calls [Slots.Forget], so slots of dead threads do not
// accumulate.
package lasterror
