// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bureau-foundation/nominal-ffi/lib/codec"
	"github.com/bureau-foundation/nominal-ffi/lib/version"
)

// Sink is a delivery destination for encoded batches.
type Sink interface {
	// Write delivers one CBOR-encoded Batch. A nil error means the
	// destination has accepted it.
	Write(ctx context.Context, batch []byte) error

	// Close releases the destination. Writes after Close fail.
	Close() error

	// Describe names the destination for logs.
	Describe() string
}

// ingestPath is appended to Options.BaseURL, followed by the escaped
// resource identifier.
const ingestPath = "/storage/writer/v1/nominal/"

// coreSink posts batches to the core ingestion service.
type coreSink struct {
	client   *http.Client
	endpoint string
	token    *Token
	session  string
	compress bool
}

func newCoreSink(client *http.Client, options Options, token *Token, resource ResourceID, session string) (*coreSink, error) {
	base := strings.TrimRight(options.BaseURL, "/")
	endpoint := base + ingestPath + url.PathEscape(resource.String())
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("engine: ingestion endpoint: %w", err)
	}
	return &coreSink{
		client:   client,
		endpoint: endpoint,
		token:    token,
		session:  session,
		compress: options.CompressRequests,
	}, nil
}

func (s *coreSink) Write(ctx context.Context, batch []byte) error {
	body := batch
	if s.compress {
		body = codec.CompressStream(batch)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("engine: creating ingest request: %w", err)
	}
	request.Header.Set("Content-Type", "application/cbor")
	if s.compress {
		request.Header.Set("Content-Encoding", "zstd")
	}
	request.Header.Set("Authorization", s.token.authorization())
	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set("X-Nominal-Session", s.session)
	request.Header.Set("X-Nominal-Raw-Size", strconv.Itoa(len(batch)))

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("engine: ingest request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("engine: ingest rejected batch: %s: %s", response.Status, strings.TrimSpace(string(detail)))
	}
	// Drain so the connection can be reused.
	io.Copy(io.Discard, response.Body)
	return nil
}

func (s *coreSink) Close() error {
	return s.token.Close()
}

func (s *coreSink) Describe() string {
	return s.endpoint
}
