// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the ingestion bearer token in memory that the
// host process cannot leak by accident.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock, and marks it excluded from core
// dumps via madvise(MADV_DONTDUMP). A LabVIEW or C host that crashes
// and writes a core file therefore does not write the token with it.
// On Close the memory is zeroed, unlocked, and unmapped.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [FromEnv] -- copies an environment variable's value
//
// After Close, any access panics. Close is idempotent.
package secret
