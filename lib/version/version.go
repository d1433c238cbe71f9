// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// Build stamps, overridden with -ldflags -X, for example:
//
//	go build -buildmode=c-shared -ldflags "-X github.com/bureau-foundation/nominal-ffi/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/libnominal
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"

	// Version is the semantic version reported to C callers.
	Version = "0.1.0-dev"
)

// product names the library in the User-Agent of ingestion requests.
const product = "nominal-ffi"

func commit() string {
	if GitDirty == "true" {
		return GitCommit + "-dirty"
	}
	return GitCommit
}

// Info returns the version with its commit and build time, for
// --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, commit(), BuildTime)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// UserAgent identifies the library to the ingestion API, e.g.
// "nominal-ffi/0.1.0-dev (abc1234; go1.25.6; linux/amd64)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s; %s/%s)",
		product, Version, commit(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
