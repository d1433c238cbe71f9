// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the streaming
// library.
//
// The library is loaded into a host process that rarely has a
// configuration story of its own, so a config file is optional. When
// the NOMINAL_FFI_CONFIG environment variable names a file, that file
// is loaded over [Default]; otherwise the defaults are used unchanged.
// There is no search path and no automatic discovery.
//
// Files ending in .json or .jsonc are parsed as JSON with comments and
// trailing commas allowed; everything else is parsed as YAML. String
// values may reference environment variables as ${VAR} or
// ${VAR:-default}.
//
//	ingest:
//	  base_url: ${NOMINAL_API_URL:-https://api.gov.nominal.io/api}
//	  timeout: 30s
//	stream:
//	  flush_interval: 500ms
//	fallback:
//	  compression: zstd
//	log:
//	  level: info
package config
