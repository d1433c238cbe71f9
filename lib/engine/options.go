// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/bureau-foundation/nominal-ffi/lib/codec"
	"github.com/bureau-foundation/nominal-ffi/lib/config"
)

// Options tunes a stream. The zero value is not usable; start from
// DefaultOptions or OptionsFromConfig.
type Options struct {
	// BaseURL is the ingestion API root.
	BaseURL string

	// RequestTimeout bounds one ingestion request.
	RequestTimeout time.Duration

	// CompressRequests sends request bodies zstd-encoded.
	CompressRequests bool

	// FlushInterval is the period of the background flush loop. Zero
	// disables it.
	FlushInterval time.Duration

	// FlushThresholdBytes is the estimated accumulated size that
	// triggers an early flush.
	FlushThresholdBytes int

	// BufferMaxBytes bounds the encoded batches awaiting delivery.
	BufferMaxBytes int

	// FallbackCompression is the frame compression of fallback files.
	FallbackCompression codec.Compression

	// FallbackSync fsyncs the fallback after every write.
	FallbackSync bool
}

// DefaultOptions returns the options matching config.Default.
func DefaultOptions() Options {
	options, err := OptionsFromConfig(config.Default())
	if err != nil {
		panic("engine: default configuration is invalid: " + err.Error())
	}
	return options
}

// OptionsFromConfig maps the library configuration onto stream
// options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	compression, err := codec.ParseCompression(cfg.Fallback.Compression)
	if err != nil {
		return Options{}, err
	}
	return Options{
		BaseURL:             cfg.Ingest.BaseURL,
		RequestTimeout:      cfg.Ingest.Timeout.Std(),
		CompressRequests:    cfg.Ingest.Compress,
		FlushInterval:       cfg.Stream.FlushInterval.Std(),
		FlushThresholdBytes: cfg.Stream.FlushThresholdBytes,
		BufferMaxBytes:      cfg.Stream.BufferMaxBytes,
		FallbackCompression: compression,
		FallbackSync:        cfg.Fallback.Sync,
	}, nil
}
