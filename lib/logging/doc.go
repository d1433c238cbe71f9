// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the library's structured logger from
// configuration.
//
// The library runs inside someone else's process, so it logs at warn
// by default and stays silent during normal operation. When stderr is
// a terminal the output is human-readable text; otherwise it is JSON
// lines, which log collectors on test rigs can ingest directly.
package logging
