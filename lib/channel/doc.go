// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel defines the identity of a telemetry channel: a name
// plus a set of key/value tags.
//
// Boundary callers describe tags as one flat string, comma-separated
// key=value pairs:
//
//	experiment=42,sensor=front
//
// [ParseTags] is deliberately lenient. An empty string yields no tags.
// A segment that does not contain exactly one '=' is dropped without
// an error, and whitespace around keys and values is trimmed. Callers
// that need stricter validation must validate before calling in.
//
// A [Descriptor] is immutable once constructed: its tag slice is copied
// on the way in and on the way out.
package channel
