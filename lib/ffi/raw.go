// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"errors"
	"unicode/utf8"
	"unsafe"
)

var (
	errNullPointer = errors.New("null pointer")
	errInvalidUTF8 = errors.New("invalid UTF-8")
)

// cBytes copies the NUL-terminated C string at p into Go memory. p
// must not be nil.
func cBytes(p unsafe.Pointer) []byte {
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

// cString reads a required UTF-8 C string.
func cString(p unsafe.Pointer) (string, error) {
	if p == nil {
		return "", errNullPointer
	}
	data := cBytes(p)
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}

// optionalCString reads a UTF-8 C string that may be absent. A nil
// pointer yields ("", false, nil).
func optionalCString(p unsafe.Pointer) (string, bool, error) {
	if p == nil {
		return "", false, nil
	}
	text, err := cString(p)
	return text, true, err
}

// element reads the i-th value of a C array of E starting at base.
func element[E any](base unsafe.Pointer, i int) E {
	var zero E
	return *(*E)(unsafe.Add(base, uintptr(i)*unsafe.Sizeof(zero)))
}

// writeText copies text into the caller's buffer of size bytes,
// truncating to leave room for the terminating NUL. A buffer that
// cannot hold at least one character plus the terminator is rejected.
func writeText(buffer unsafe.Pointer, size uintptr, text string) error {
	if buffer == nil || size == 0 {
		return errors.New("buffer pointer is null or size is zero")
	}
	if size < 2 {
		return errors.New("buffer size must be at least 2 bytes")
	}
	n := len(text)
	if uintptr(n) > size-1 {
		n = int(size - 1)
	}
	destination := unsafe.Slice((*byte)(buffer), size)
	copy(destination, text[:n])
	destination[n] = 0
	return nil
}

// storeHandle writes a handle through a C uint64_t pointer.
func storeHandle(out unsafe.Pointer, handle uint64) {
	*(*uint64)(out) = handle
}
