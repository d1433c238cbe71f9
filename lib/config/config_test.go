// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Bridge.Workers != 4 {
		t.Errorf("expected bridge.workers=4, got %d", cfg.Bridge.Workers)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log.level=warn, got %s", cfg.Log.Level)
	}
}

func TestLoad_UnsetUsesDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Ingest.BaseURL != Default().Ingest.BaseURL {
		t.Errorf("expected default base URL, got %s", cfg.Ingest.BaseURL)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "nominal.yaml", `
ingest:
  base_url: http://localhost:8080/api
  timeout: 5s
bridge:
  workers: 2
stream:
  flush_interval: 100ms
fallback:
  compression: lz4
log:
  level: debug
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Ingest.BaseURL != "http://localhost:8080/api" {
		t.Errorf("base_url = %s", cfg.Ingest.BaseURL)
	}
	if cfg.Ingest.Timeout.Std() != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Ingest.Timeout.Std())
	}
	if cfg.Bridge.Workers != 2 {
		t.Errorf("workers = %d", cfg.Bridge.Workers)
	}
	if cfg.Stream.FlushInterval.Std() != 100*time.Millisecond {
		t.Errorf("flush_interval = %v", cfg.Stream.FlushInterval.Std())
	}
	// Fields absent from the file keep their defaults.
	if cfg.Stream.FlushThresholdBytes != Default().Stream.FlushThresholdBytes {
		t.Errorf("flush_threshold_bytes = %d", cfg.Stream.FlushThresholdBytes)
	}
	if cfg.Fallback.Compression != "lz4" || cfg.Log.Level != "debug" {
		t.Errorf("compression=%s level=%s", cfg.Fallback.Compression, cfg.Log.Level)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "nominal.jsonc", `{
  // Local development ingestion.
  "ingest": {"base_url": "http://127.0.0.1:9000", "timeout": "2s",},
  "fallback": {"compression": "none"},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Ingest.BaseURL != "http://127.0.0.1:9000" || cfg.Ingest.Timeout.Std() != 2*time.Second {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	if cfg.Fallback.Compression != "none" {
		t.Errorf("compression = %s", cfg.Fallback.Compression)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("NOMINAL_TEST_URL", "https://staging.example.com/api")
	t.Setenv("NOMINAL_TEST_UNSET", "")
	path := writeConfig(t, "nominal.yaml", `
ingest:
  base_url: ${NOMINAL_TEST_URL}
log:
  file: ${NOMINAL_TEST_UNSET:-/tmp/nominal.log}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Ingest.BaseURL != "https://staging.example.com/api" {
		t.Errorf("base_url = %s", cfg.Ingest.BaseURL)
	}
	if cfg.Log.File != "/tmp/nominal.log" {
		t.Errorf("log.file = %s", cfg.Log.File)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad url", func(c *Config) { c.Ingest.BaseURL = "ftp://x" }, "ingest.base_url"},
		{"zero workers", func(c *Config) { c.Bridge.Workers = 0 }, "bridge.workers"},
		{"negative interval", func(c *Config) { c.Stream.FlushInterval = -1 }, "stream.flush_interval"},
		{"small buffer", func(c *Config) { c.Stream.BufferMaxBytes = 1 }, "stream.buffer_max_bytes"},
		{"bad compression", func(c *Config) { c.Fallback.Compression = "gzip" }, "fallback.compression"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Workers = 0
	cfg.Log.Level = "loud"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bridge.workers") || !strings.Contains(err.Error(), "log.level") {
		t.Fatalf("Validate() = %v, want both problems", err)
	}
}
