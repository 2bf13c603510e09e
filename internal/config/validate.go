package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures deep inside the processor.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if c.Queue.MaxConcurrentDownloads < 1 {
		problems = append(problems, "queue.max_concurrent_downloads must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		problems = append(problems, "queue.max_attempts must be at least 1")
	}
	if c.Queue.DispatchIntervalSeconds < 1 {
		problems = append(problems, "queue.dispatch_interval_seconds must be at least 1")
	}
	if c.Queue.SyncIntervalSeconds < 1 {
		problems = append(problems, "queue.sync_interval_seconds must be at least 1")
	}
	if c.Queue.BackoffBaseSeconds < 1 {
		problems = append(problems, "queue.backoff_base_seconds must be at least 1")
	}
	if c.Queue.BackoffCapSeconds < c.Queue.BackoffBaseSeconds {
		problems = append(problems, "queue.backoff_cap_seconds must not be below queue.backoff_base_seconds")
	}

	for name, rl := range map[string]RateLimit{
		"indexer":         c.Indexer.RateLimit,
		"download_client": c.DownloadClient.RateLimit,
	} {
		if rl.Requests < 1 {
			problems = append(problems, fmt.Sprintf("%s.rate_limit.requests must be at least 1", name))
		}
		if rl.WindowSeconds < 1 {
			problems = append(problems, fmt.Sprintf("%s.rate_limit.window_seconds must be at least 1", name))
		}
	}
	for name, br := range map[string]Breaker{
		"indexer":         c.Indexer.Breaker,
		"download_client": c.DownloadClient.Breaker,
	} {
		if br.FailureThreshold < 1 {
			problems = append(problems, fmt.Sprintf("%s.breaker.failure_threshold must be at least 1", name))
		}
		if br.CooldownSeconds < 1 {
			problems = append(problems, fmt.Sprintf("%s.breaker.cooldown_seconds must be at least 1", name))
		}
	}

	if c.Scoring.MaxSizeGB <= 0 {
		problems = append(problems, "scoring.max_size_gb must be positive")
	}
	if c.Scoring.SizeEpsilon < 0 {
		problems = append(problems, "scoring.size_epsilon must not be negative")
	}
	if c.Scoring.MinSeeders < 1 {
		problems = append(problems, "scoring.min_seeders must be at least 1")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
