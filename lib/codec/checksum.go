// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Checksum is a 32-byte keyed BLAKE3 digest.
type Checksum [32]byte

// frameKey separates fallback frame checksums from any other use of
// BLAKE3 over the same bytes. The value is ASCII, zero-padded, and
// must never change: existing fallback files are verified against it.
var frameKey = [32]byte{
	'n', 'o', 'm', 'i', 'n', 'a', 'l', '.', 'f', 'a', 'l', 'l', 'b', 'a', 'c', 'k',
	'.', 'f', 'r', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// FrameChecksum returns the checksum of an uncompressed frame payload.
func FrameChecksum(data []byte) Checksum {
	hasher, err := blake3.NewKeyed(frameKey[:])
	if err != nil {
		// NewKeyed fails only for keys that are not 32 bytes.
		panic("codec: BLAKE3 keyed hasher: " + err.Error())
	}
	hasher.Write(data)
	var sum Checksum
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// String returns the lowercase hex form.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}
