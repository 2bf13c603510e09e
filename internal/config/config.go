package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	Bind    string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// RateLimit bounds outbound request rate to one external dependency.
type RateLimit struct {
	Requests      int `toml:"requests"`
	WindowSeconds int `toml:"window_seconds"`
}

// Breaker contains circuit breaker thresholds for one external dependency.
type Breaker struct {
	FailureThreshold int `toml:"failure_threshold"`
	WindowSeconds    int `toml:"window_seconds"`
	CooldownSeconds  int `toml:"cooldown_seconds"`
}

// Indexer contains configuration for the Torznab release indexer.
type Indexer struct {
	BaseURL        string    `toml:"base_url"`
	APIKey         string    `toml:"api_key"`
	TimeoutSeconds int       `toml:"timeout_seconds"`
	RateLimit      RateLimit `toml:"rate_limit"`
	Breaker        Breaker   `toml:"breaker"`
}

// DownloadClient contains configuration for the qBittorrent download client.
type DownloadClient struct {
	BaseURL        string    `toml:"base_url"`
	Username       string    `toml:"username"`
	Password       string    `toml:"password"`
	Category       string    `toml:"category"`
	TimeoutSeconds int       `toml:"timeout_seconds"`
	RateLimit      RateLimit `toml:"rate_limit"`
	Breaker        Breaker   `toml:"breaker"`
}

// Scoring contains the release scoring preferences.
type Scoring struct {
	ResolutionWeights map[string]float64 `toml:"resolution_weights"`
	SourceWeights     map[string]float64 `toml:"source_weights"`
	CodecWeights      map[string]float64 `toml:"codec_weights"`
	MinimumScore      float64            `toml:"minimum_score"`
	PreferredGroups   []string           `toml:"preferred_groups"`
	ForbiddenGroups   []string           `toml:"forbidden_groups"`
	ForbiddenKeywords []string           `toml:"forbidden_keywords"`
	MinSeeders        int                `toml:"min_seeders"`
	SeederPenalty     float64            `toml:"seeder_penalty"`
	GroupBonus        float64            `toml:"group_bonus"`
	FreeleechBonus    float64            `toml:"freeleech_bonus"`
	InternalBonus     float64            `toml:"internal_bonus"`
	MaxSizeGB         float64            `toml:"max_size_gb"`
	SizeEpsilon       float64            `toml:"size_epsilon"`
}

// Queue contains configuration for queue processing timing and limits.
type Queue struct {
	MaxConcurrentDownloads  int `toml:"max_concurrent_downloads"`
	MaxAttempts             int `toml:"max_attempts"`
	DispatchIntervalSeconds int `toml:"dispatch_interval_seconds"`
	SyncIntervalSeconds     int `toml:"sync_interval_seconds"`
	CleanupIntervalSeconds  int `toml:"cleanup_interval_seconds"`
	BackoffBaseSeconds      int `toml:"backoff_base_seconds"`
	BackoffCapSeconds       int `toml:"backoff_cap_seconds"`
	RetentionDays           int `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	OnComplete            bool   `toml:"on_complete"`
	OnFailed              bool   `toml:"on_failed"`
}

// Config encapsulates all configuration values for fetcharr.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and the health/metrics bind address
//   - Logging: log level and format
//   - Indexer: Torznab endpoint plus its rate limit and breaker thresholds
//   - DownloadClient: qBittorrent endpoint plus its rate limit and breaker thresholds
//   - Scoring: release scoring preferences
//   - Queue: processor intervals, concurrency, retry policy, retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths          Paths          `toml:"paths"`
	Logging        Logging        `toml:"logging"`
	Indexer        Indexer        `toml:"indexer"`
	DownloadClient DownloadClient `toml:"download_client"`
	Scoring        Scoring        `toml:"scoring"`
	Queue          Queue          `toml:"queue"`
	Notifications  Notifications  `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fetcharr/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists at
// the resolved location the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Indexer.BaseURL = strings.TrimRight(strings.TrimSpace(c.Indexer.BaseURL), "/")
	c.DownloadClient.BaseURL = strings.TrimRight(strings.TrimSpace(c.DownloadClient.BaseURL), "/")
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
