// Package config loads and validates the TOML configuration file that drives
// the daemon: paths, external dependency endpoints with their rate limit and
// circuit breaker thresholds, scoring preferences, and processor timing.
package config
