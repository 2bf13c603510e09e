// Package resilience protects calls to external dependencies (the indexer
// and the download client) with a sliding-window rate limiter, a circuit
// breaker, and transient/permanent error classification. Each dependency
// gets its own Client so one misbehaving service cannot starve the other.
package resilience
