// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "errors"

var (
	// ErrInvalidToken reports a bearer token that is empty or
	// contains characters outside the token alphabet.
	ErrInvalidToken = errors.New("engine: invalid bearer token")

	// ErrInvalidResource reports a malformed resource identifier.
	ErrInvalidResource = errors.New("engine: invalid resource identifier")

	// ErrFallbackOpen reports that the fallback destination could not
	// be opened, locked, or initialized.
	ErrFallbackOpen = errors.New("engine: cannot open fallback destination")

	// ErrStreamClosed is returned by operations on a closed stream.
	ErrStreamClosed = errors.New("engine: stream closed")

	// ErrNoDestination is returned by Build when neither core
	// ingestion nor a file destination was configured.
	ErrNoDestination = errors.New("engine: no destination configured")

	// ErrSamplesLost reports samples discarded before delivery, either
	// evicted from a full delivery buffer or too large to queue at all.
	// Flush returns it once for every loss since the previous Flush.
	ErrSamplesLost = errors.New("engine: samples lost before delivery")

	// ErrCorruptFrame reports a fallback frame whose checksum or size
	// does not match its payload.
	ErrCorruptFrame = errors.New("engine: corrupt fallback frame")
)
