// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"strings"
)

// FromEnv copies the value of the named environment variable into a
// protected buffer. It returns (nil, nil) when the variable is unset
// or blank. Surrounding whitespace is trimmed.
//
// The process environment itself keeps its copy; only the library's
// copy is protected.
func FromEnv(name string) (*Buffer, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return nil, nil
	}
	return NewFromBytes([]byte(value))
}
