// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import "fmt"

// Code is the integer status every boundary call returns. The values
// are part of the C ABI and must not change.
type Code int32

const (
	CodeSuccess       Code = 0
	CodeGeneric       Code = -1
	CodeInvalidHandle Code = -2
	CodeInvalidParam  Code = -3
	CodeRuntime       Code = -4
	CodeIO            Code = -5
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeGeneric:
		return "generic error"
	case CodeInvalidHandle:
		return "invalid handle"
	case CodeInvalidParam:
		return "invalid parameter"
	case CodeRuntime:
		return "runtime error"
	case CodeIO:
		return "i/o error"
	default:
		return fmt.Sprintf("code(%d)", int32(c))
	}
}
