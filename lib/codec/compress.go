// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a payload is compressed. The values are
// written into fallback frames; changing them breaks existing files.
type Compression uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: cheap on CPU, modest
	// ratio. Suited to hosts that flush often.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level. Batches of
	// repetitive channel names and tags compress well.
	CompressionZstd Compression = 2
)

// String returns the configuration name of the tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression maps a configuration name to a tag. The empty
// string selects zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("codec: unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// MaxRawSize bounds the decompressed size of one payload. Decompress
// refuses larger sizes so a corrupt length cannot force a huge
// allocation. Streams never queue a batch larger than this.
const MaxRawSize = 256 << 20

// zstd encoders and decoders are safe for concurrent use with
// EncodeAll/DecodeAll and expensive to build, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxRawSize))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses data with the requested algorithm and returns
// the payload together with the tag actually used. When the algorithm
// does not make the payload smaller the data is returned unchanged
// with CompressionNone.
func Compress(data []byte, requested Compression) ([]byte, Compression, error) {
	switch requested {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: lz4 compress: %w", err)
		}
		// CompressBlock reports 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return data, CompressionNone, nil
		}
		return destination[:written], CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("codec: unsupported compression %d", uint8(requested))
	}
}

// Decompress reverses Compress. rawSize must equal the original
// length; a mismatch is an error, as is a rawSize that is negative or
// above MaxRawSize.
func Decompress(payload []byte, tag Compression, rawSize int) ([]byte, error) {
	if rawSize < 0 || rawSize > MaxRawSize {
		return nil, fmt.Errorf("codec: raw size %d outside [0, %d]", rawSize, MaxRawSize)
	}
	switch tag {
	case CompressionNone:
		if len(payload) != rawSize {
			return nil, fmt.Errorf("codec: uncompressed payload is %d bytes, expected %d", len(payload), rawSize)
		}
		return payload, nil

	case CompressionLZ4:
		destination := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(payload, destination)
		if err != nil {
			return nil, fmt.Errorf("codec: lz4 decompress: %w", err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("codec: lz4 decompress produced %d bytes, expected %d", read, rawSize)
		}
		return destination, nil

	case CompressionZstd:
		destination, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("codec: zstd decompress: %w", err)
		}
		if len(destination) != rawSize {
			return nil, fmt.Errorf("codec: zstd decompress produced %d bytes, expected %d", len(destination), rawSize)
		}
		return destination, nil

	default:
		return nil, fmt.Errorf("codec: unsupported compression %d", uint8(tag))
	}
}

// CompressStream compresses an entire request body with zstd. Used by
// the ingestion client when Content-Encoding compression is enabled.
func CompressStream(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}
