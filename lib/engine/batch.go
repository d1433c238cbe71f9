// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"

	"github.com/bureau-foundation/nominal-ffi/lib/channel"
)

// Value is the set of sample types a channel can carry.
type Value interface {
	float64 | int64 | bool | string
}

// Kind identifies the sample type of a series. The values are part of
// the batch encoding.
type Kind uint8

const (
	KindFloat64 Kind = 1
	KindInt64   Kind = 2
	KindBool    Kind = 3
	KindString  Kind = 4
)

// String returns the lowercase type name.
func (k Kind) String() string {
	switch k {
	case KindFloat64:
		return "float64"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// kindOf returns the Kind for a Value type parameter.
func kindOf[T Value]() Kind {
	var zero T
	switch any(zero).(type) {
	case float64:
		return KindFloat64
	case int64:
		return KindInt64
	case bool:
		return KindBool
	default:
		return KindString
	}
}

// Series is the samples of one channel descriptor and type within a
// batch, in push order. Exactly one of the value slices is populated,
// parallel to Timestamps.
type Series struct {
	Channel    string        `cbor:"channel" json:"channel"`
	Tags       []channel.Tag `cbor:"tags,omitempty" json:"tags,omitempty"`
	Kind       Kind          `cbor:"kind" json:"kind"`
	Timestamps []int64       `cbor:"timestamps" json:"timestamps"`
	Float64s   []float64     `cbor:"f64,omitempty" json:"float64s,omitempty"`
	Int64s     []int64       `cbor:"i64,omitempty" json:"int64s,omitempty"`
	Bools      []bool        `cbor:"bool,omitempty" json:"bools,omitempty"`
	Strings    []string      `cbor:"str,omitempty" json:"strings,omitempty"`
}

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.Timestamps) }

// Descriptor rebuilds the channel descriptor of the series.
func (s *Series) Descriptor() channel.Descriptor {
	return channel.NewDescriptor(s.Channel, s.Tags)
}

// ValueString formats sample i for display.
func (s *Series) ValueString(i int) string {
	switch s.Kind {
	case KindFloat64:
		return fmt.Sprint(s.Float64s[i])
	case KindInt64:
		return fmt.Sprint(s.Int64s[i])
	case KindBool:
		return fmt.Sprint(s.Bools[i])
	case KindString:
		return fmt.Sprintf("%q", s.Strings[i])
	default:
		return "?"
	}
}

func (s *Series) append(timestamp int64, value any) {
	s.Timestamps = append(s.Timestamps, timestamp)
	switch typed := value.(type) {
	case float64:
		s.Float64s = append(s.Float64s, typed)
	case int64:
		s.Int64s = append(s.Int64s, typed)
	case bool:
		s.Bools = append(s.Bools, typed)
	case string:
		s.Strings = append(s.Strings, typed)
	default:
		panic(fmt.Sprintf("engine: unsupported sample type %T", value))
	}
}

// Batch is the unit of delivery: every sample accumulated by one
// stream between two flushes.
type Batch struct {
	// Session identifies the stream that produced the batch. A new
	// session id is drawn each time a stream is built.
	Session string `cbor:"session" json:"session"`

	// Resource is the ingestion destination, empty for file-only
	// streams.
	Resource string `cbor:"resource,omitempty" json:"resource,omitempty"`

	// Sequence starts at 0 and increases by one per batch within a
	// session.
	Sequence uint64 `cbor:"sequence" json:"sequence"`

	// CreatedAt is the flush time in Unix nanoseconds.
	CreatedAt int64 `cbor:"created_at" json:"created_at"`

	Series []Series `cbor:"series" json:"series"`
}

// SampleCount returns the total number of samples in the batch.
func (b *Batch) SampleCount() int {
	total := 0
	for i := range b.Series {
		total += b.Series[i].Len()
	}
	return total
}

// split divides the batch into two halves of roughly equal sample
// count, keeping series order and the order of samples within each
// series. Both halves keep the batch's sequence number. It returns nil
// for the second half when the batch holds fewer than two samples.
func (b *Batch) split() (*Batch, *Batch) {
	total := b.SampleCount()
	if total < 2 {
		return b, nil
	}

	first := &Batch{Session: b.Session, Resource: b.Resource, Sequence: b.Sequence, CreatedAt: b.CreatedAt}
	second := &Batch{Session: b.Session, Resource: b.Resource, Sequence: b.Sequence, CreatedAt: b.CreatedAt}
	remaining := total / 2
	for i := range b.Series {
		series := &b.Series[i]
		switch {
		case remaining == 0:
			second.Series = append(second.Series, *series)
		case series.Len() <= remaining:
			first.Series = append(first.Series, *series)
			remaining -= series.Len()
		default:
			first.Series = append(first.Series, series.slice(0, remaining))
			second.Series = append(second.Series, series.slice(remaining, series.Len()))
			remaining = 0
		}
	}
	return first, second
}

// slice returns samples [from, to) of the series.
func (s *Series) slice(from, to int) Series {
	part := Series{
		Channel:    s.Channel,
		Tags:       s.Tags,
		Kind:       s.Kind,
		Timestamps: s.Timestamps[from:to],
	}
	switch s.Kind {
	case KindFloat64:
		part.Float64s = s.Float64s[from:to]
	case KindInt64:
		part.Int64s = s.Int64s[from:to]
	case KindBool:
		part.Bools = s.Bools[from:to]
	case KindString:
		part.Strings = s.Strings[from:to]
	}
	return part
}
