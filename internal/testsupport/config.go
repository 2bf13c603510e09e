// Package testsupport provides shared fixtures for package tests: temp-dir
// seeded configurations and opened queue stores with automatic cleanup.
package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.Bind = "127.0.0.1:0"
	cfg.Indexer.BaseURL = "http://127.0.0.1:9696"
	cfg.Indexer.APIKey = "test"
	cfg.DownloadClient.BaseURL = "http://127.0.0.1:8080"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxConcurrent overrides the download slot count on the test config.
func WithMaxConcurrent(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxConcurrentDownloads = n
	}
}

// WithMaxAttempts overrides the retry budget on the test config.
func WithMaxAttempts(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = n
	}
}
