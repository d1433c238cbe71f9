// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the optional configuration file.
const EnvironmentVariable = "NOMINAL_FFI_CONFIG"

// Config is the complete library configuration.
type Config struct {
	// Ingest configures delivery to the core ingestion service.
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`

	// Bridge configures the worker pool that runs blocking engine
	// operations on behalf of synchronous callers.
	Bridge BridgeConfig `yaml:"bridge" json:"bridge"`

	// Stream configures batching inside each stream.
	Stream StreamConfig `yaml:"stream" json:"stream"`

	// Fallback configures the local fallback destination.
	Fallback FallbackConfig `yaml:"fallback" json:"fallback"`

	// Log configures the library's diagnostic logging.
	Log LogConfig `yaml:"log" json:"log"`
}

// IngestConfig configures the core ingestion client.
type IngestConfig struct {
	// BaseURL is the API root. Batches are posted to
	// BaseURL + "/storage/writer/v1/nominal/{resource}".
	// Default: https://api.gov.nominal.io/api
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timeout bounds a single ingestion request.
	// Default: 30s
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// Compress enables zstd Content-Encoding on request bodies.
	// Default: true
	Compress bool `yaml:"compress" json:"compress"`
}

// BridgeConfig configures the worker pool.
type BridgeConfig struct {
	// Workers is the number of worker goroutines. Default: 4
	Workers int `yaml:"workers" json:"workers"`
}

// StreamConfig configures batching.
type StreamConfig struct {
	// FlushInterval is the period of the background flush loop.
	// Zero disables periodic flushing. Default: 500ms
	FlushInterval Duration `yaml:"flush_interval" json:"flush_interval"`

	// FlushThresholdBytes triggers an early flush once the pending
	// samples of a stream are estimated to exceed this size.
	// Default: 1 MiB
	FlushThresholdBytes int `yaml:"flush_threshold_bytes" json:"flush_threshold_bytes"`

	// BufferMaxBytes bounds the encoded batches waiting for delivery.
	// The oldest batches are dropped beyond it. Default: 64 MiB
	BufferMaxBytes int `yaml:"buffer_max_bytes" json:"buffer_max_bytes"`
}

// FallbackConfig configures the fallback destination.
type FallbackConfig struct {
	// Compression is the frame compression for fallback files: none,
	// lz4, or zstd. Default: zstd
	Compression string `yaml:"compression" json:"compression"`

	// Sync fsyncs the fallback file after every flush. Default: true
	Sync bool `yaml:"sync" json:"sync"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: warn
	Level string `yaml:"level" json:"level"`

	// File redirects logs to a file instead of stderr.
	File string `yaml:"file" json:"file"`
}

// Duration is a time.Duration that reads from strings such as "500ms"
// in both YAML and JSON.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	return d.parse(text)
}

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	return d.parse(text)
}

func (d *Duration) parse(text string) error {
	text = expandVars(text)
	if text == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Ingest: IngestConfig{
			BaseURL:  "https://api.gov.nominal.io/api",
			Timeout:  Duration(30 * time.Second),
			Compress: true,
		},
		Bridge: BridgeConfig{
			Workers: 4,
		},
		Stream: StreamConfig{
			FlushInterval:       Duration(500 * time.Millisecond),
			FlushThresholdBytes: 1 << 20,
			BufferMaxBytes:      64 << 20,
		},
		Fallback: FallbackConfig{
			Compression: "zstd",
			Sync:        true,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load returns the configuration named by NOMINAL_FFI_CONFIG, or the
// defaults when the variable is unset or empty.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in string fields.
func (c *Config) expandVariables() {
	c.Ingest.BaseURL = expandVars(c.Ingest.BaseURL)
	c.Fallback.Compression = expandVars(c.Fallback.Compression)
	c.Log.Level = expandVars(c.Log.Level)
	c.Log.File = expandVars(c.Log.File)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Ingest.BaseURL == "" {
		errs = append(errs, errors.New("ingest.base_url is required"))
	} else if !strings.HasPrefix(c.Ingest.BaseURL, "http://") && !strings.HasPrefix(c.Ingest.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("ingest.base_url must be an http or https URL, got %q", c.Ingest.BaseURL))
	}
	if c.Ingest.Timeout <= 0 {
		errs = append(errs, errors.New("ingest.timeout must be positive"))
	}

	if c.Bridge.Workers < 1 {
		errs = append(errs, fmt.Errorf("bridge.workers must be at least 1, got %d", c.Bridge.Workers))
	}

	if c.Stream.FlushInterval < 0 {
		errs = append(errs, errors.New("stream.flush_interval must not be negative"))
	}
	if c.Stream.FlushThresholdBytes < 1 {
		errs = append(errs, errors.New("stream.flush_threshold_bytes must be positive"))
	}
	if c.Stream.BufferMaxBytes < c.Stream.FlushThresholdBytes {
		errs = append(errs, errors.New("stream.buffer_max_bytes must be at least stream.flush_threshold_bytes"))
	}

	switch c.Fallback.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("fallback.compression must be one of none, lz4, zstd; got %q", c.Fallback.Compression))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
