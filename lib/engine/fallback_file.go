// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/nominal-ffi/lib/codec"
)

// A fallback file is a CBOR sequence: one fileHeader followed by any
// number of frames, each holding one encoded Batch. Frames are
// appended with a single write so a crash leaves at most one
// truncated frame at the tail.
const (
	fallbackMagic         = "nominal-fallback"
	fallbackFormatVersion = 1
)

type fileHeader struct {
	Magic   string `cbor:"magic"`
	Version int    `cbor:"version"`
}

type frame struct {
	Compression codec.Compression `cbor:"compression"`
	RawSize     int               `cbor:"raw_size"`
	Checksum    codec.Checksum    `cbor:"checksum"`
	Payload     []byte            `cbor:"payload"`
}

// fileSink appends frames to an exclusively locked fallback file.
type fileSink struct {
	file        *os.File
	path        string
	compression codec.Compression
	sync        bool
}

func openFileSink(path string, options Options) (*fileSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFallbackOpen, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is in use by another stream", ErrFallbackOpen, path)
		}
		return nil, fmt.Errorf("%w: locking %s: %v", ErrFallbackOpen, path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrFallbackOpen, err)
	}

	if info.Size() == 0 {
		header, err := codec.Marshal(fileHeader{Magic: fallbackMagic, Version: fallbackFormatVersion})
		if err == nil {
			_, err = file.Write(header)
		}
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: writing header to %s: %v", ErrFallbackOpen, path, err)
		}
	} else if err := checkHeader(io.NewSectionReader(file, 0, info.Size())); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrFallbackOpen, path, err)
	}

	return &fileSink{
		file:        file,
		path:        path,
		compression: options.FallbackCompression,
		sync:        options.FallbackSync,
	}, nil
}

func (s *fileSink) Write(_ context.Context, batch []byte) error {
	payload, used, err := codec.Compress(batch, s.compression)
	if err != nil {
		return err
	}
	encoded, err := codec.Marshal(frame{
		Compression: used,
		RawSize:     len(batch),
		Checksum:    codec.FrameChecksum(batch),
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("engine: encoding fallback frame: %w", err)
	}
	if _, err := s.file.Write(encoded); err != nil {
		return fmt.Errorf("engine: writing %s: %w", s.path, err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("engine: syncing %s: %w", s.path, err)
		}
	}
	return nil
}

// Close releases the lock by closing the descriptor.
func (s *fileSink) Close() error {
	return s.file.Close()
}

func (s *fileSink) Describe() string {
	return s.path
}

func checkHeader(reader io.Reader) error {
	var header fileHeader
	if err := codec.NewDecoder(reader).Decode(&header); err != nil {
		return fmt.Errorf("not a fallback file: %w", err)
	}
	if header.Magic != fallbackMagic {
		return fmt.Errorf("not a fallback file: magic %q", header.Magic)
	}
	if header.Version != fallbackFormatVersion {
		return fmt.Errorf("unsupported fallback format version %d", header.Version)
	}
	return nil
}

// ScanFallbackFile decodes the batches of a fallback file in write
// order, calling fn for each. A truncated final frame, a checksum
// mismatch, or an error from fn stops the scan and is returned;
// batches already passed to fn remain valid.
func ScanFallbackFile(path string, fn func(*Batch) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer file.Close()

	decoder := codec.NewDecoder(bufio.NewReader(file))
	var header fileHeader
	if err := decoder.Decode(&header); err != nil {
		return fmt.Errorf("engine: %s: not a fallback file: %w", path, err)
	}
	if header.Magic != fallbackMagic {
		return fmt.Errorf("engine: %s: not a fallback file: magic %q", path, header.Magic)
	}
	if header.Version != fallbackFormatVersion {
		return fmt.Errorf("engine: %s: unsupported fallback format version %d", path, header.Version)
	}

	for index := 0; ; index++ {
		var record frame
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("engine: %s: frame %d: %w", path, index, err)
		}

		raw, err := codec.Decompress(record.Payload, record.Compression, record.RawSize)
		if err != nil {
			return fmt.Errorf("%w: %s: frame %d: %v", ErrCorruptFrame, path, index, err)
		}
		if codec.FrameChecksum(raw) != record.Checksum {
			return fmt.Errorf("%w: %s: frame %d: checksum mismatch", ErrCorruptFrame, path, index)
		}

		var batch Batch
		if err := codec.Unmarshal(raw, &batch); err != nil {
			return fmt.Errorf("%w: %s: frame %d: %v", ErrCorruptFrame, path, index, err)
		}
		if err := fn(&batch); err != nil {
			return err
		}
	}
}

// ReadFallbackFile returns every batch in a fallback file.
func ReadFallbackFile(path string) ([]Batch, error) {
	var batches []Batch
	err := ScanFallbackFile(path, func(batch *Batch) error {
		batches = append(batches, *batch)
		return nil
	})
	return batches, err
}
