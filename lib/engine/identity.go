// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"regexp"

	"github.com/bureau-foundation/nominal-ffi/lib/secret"
)

// tokenPattern is the bearer token alphabet: RFC 6750 b64token.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~+/]+=*$`)

// Token is a validated bearer token held in locked memory.
type Token struct {
	buffer *secret.Buffer
}

// NewToken validates raw and moves it into protected memory. raw is
// zeroed whether or not validation succeeds.
func NewToken(raw []byte) (*Token, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}
	if !tokenPattern.Match(raw) {
		secret.Zero(raw)
		return nil, fmt.Errorf("%w: token contains characters outside [A-Za-z0-9-._~+/=]", ErrInvalidToken)
	}
	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("engine: protecting token: %w", err)
	}
	return &Token{buffer: buffer}, nil
}

// TokenFromBuffer validates a token that is already in protected
// memory and takes ownership of the buffer.
func TokenFromBuffer(buffer *secret.Buffer) (*Token, error) {
	if !tokenPattern.Match(buffer.Bytes()) {
		buffer.Close()
		return nil, fmt.Errorf("%w: token contains characters outside [A-Za-z0-9-._~+/=]", ErrInvalidToken)
	}
	return &Token{buffer: buffer}, nil
}

// authorization returns the Authorization header value. The result is
// a heap string; it lives only as long as one request.
func (t *Token) authorization() string {
	return "Bearer " + string(t.buffer.Bytes())
}

// Close zeros the token.
func (t *Token) Close() error {
	return t.buffer.Close()
}

// ResourceID identifies an ingestion destination, written
// ri.<service>.<instance>.<type>.<locator>. The instance may be empty.
type ResourceID struct {
	Service  string
	Instance string
	Type     string
	Locator  string
}

var resourcePattern = regexp.MustCompile(
	`^ri\.([a-z][a-z0-9\-]*)\.([a-z0-9][a-z0-9\-]*)?\.([a-z][a-z0-9\-]*)\.([a-zA-Z0-9_\-.]+)$`)

// ParseResourceID parses and validates a resource identifier.
func ParseResourceID(text string) (ResourceID, error) {
	parts := resourcePattern.FindStringSubmatch(text)
	if parts == nil {
		return ResourceID{}, fmt.Errorf("%w: %q is not of the form ri.<service>.<instance>.<type>.<locator>", ErrInvalidResource, text)
	}
	return ResourceID{
		Service:  parts[1],
		Instance: parts[2],
		Type:     parts[3],
		Locator:  parts[4],
	}, nil
}

// String returns the canonical text form.
func (r ResourceID) String() string {
	if r.Service == "" {
		return ""
	}
	return "ri." + r.Service + "." + r.Instance + "." + r.Type + "." + r.Locator
}
