// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
	"github.com/bureau-foundation/nominal-ffi/lib/codec"
)

// Per-sample CBOR size estimates: a timestamp is at most a 9-byte
// integer, numbers at most 9 bytes, a bool one byte, and a string its
// length plus a header of up to 5 bytes.
const (
	timestampSize = 9
	numberSize    = 9
	boolSize      = 1
	stringHeader  = 5
)

// Accumulator groups pushed samples into series and produces a Batch
// on demand. It tracks the approximate encoded size so pushes can
// signal when a flush is due.
//
// Thread-safe: pushes from many writers and the flush loop may call
// it concurrently.
type Accumulator struct {
	mu             sync.Mutex
	series         map[string]*Series
	order          []string
	sizeBytes      int
	sequenceNumber uint64
	session        string
	resource       string
	flushThreshold int
}

// NewAccumulator creates an Accumulator that stamps each batch with
// session and resource. A flushThreshold of 0 disables size-based
// flush signalling.
func NewAccumulator(session, resource string, flushThreshold int) *Accumulator {
	return &Accumulator{
		series:         make(map[string]*Series),
		session:        session,
		resource:       resource,
		flushThreshold: flushThreshold,
	}
}

// Add appends one sample to the series for (descriptor, kind). It
// returns true when the accumulated size has crossed the threshold.
func (a *Accumulator) Add(descriptor channel.Descriptor, kind Kind, timestamp int64, value any) (bool, error) {
	size := timestampSize
	switch typed := value.(type) {
	case float64, int64:
		size += numberSize
	case bool:
		size += boolSize
	case string:
		size += len(typed) + stringHeader
	default:
		return false, fmt.Errorf("engine: unsupported sample type %T", value)
	}

	key := kind.String() + "\x00" + descriptor.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	series, ok := a.series[key]
	if !ok {
		series = &Series{
			Channel: descriptor.Name(),
			Tags:    descriptor.Tags(),
			Kind:    kind,
		}
		headerSize, err := marshalSize(series)
		if err != nil {
			return false, fmt.Errorf("measuring series header: %w", err)
		}
		a.series[key] = series
		a.order = append(a.order, key)
		size += headerSize
	}
	series.append(timestamp, value)
	a.sizeBytes += size

	return a.flushThreshold > 0 && a.sizeBytes >= a.flushThreshold, nil
}

// Flush drains the accumulated samples into a Batch with the next
// sequence number. Returns nil when nothing has been added since the
// last flush. Series appear in order of first push.
func (a *Accumulator) Flush(createdAt int64) *Batch {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.order) == 0 {
		return nil
	}

	batch := &Batch{
		Session:   a.session,
		Resource:  a.resource,
		Sequence:  a.sequenceNumber,
		CreatedAt: createdAt,
		Series:    make([]Series, 0, len(a.order)),
	}
	for _, key := range a.order {
		batch.Series = append(batch.Series, *a.series[key])
	}

	a.series = make(map[string]*Series)
	a.order = nil
	a.sizeBytes = 0
	a.sequenceNumber++

	return batch
}

// SizeBytes returns the estimated encoded size of pending samples.
func (a *Accumulator) SizeBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sizeBytes
}

// reserveSequence hands out the next sequence number without draining
// anything. A flush uses it to number the parts of a batch it splits.
func (a *Accumulator) reserveSequence() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	sequence := a.sequenceNumber
	a.sequenceNumber++
	return sequence
}

// SequenceNumber returns the sequence number of the next batch.
func (a *Accumulator) SequenceNumber() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sequenceNumber
}

func marshalSize(v any) (int, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
