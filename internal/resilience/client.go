package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/config"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
)

// Observer receives call outcomes and circuit transitions, decoupling the
// wrapper from the metrics registry.
type Observer interface {
	RequestCompleted(dependency, outcome string)
	StateChanged(dependency string, state BreakerState)
}

// Client composes the per-dependency protections around an operation:
// rate limiting, a hard call timeout, and the circuit breaker. Every error
// leaving Do is classified as transient or permanent.
type Client struct {
	dependency string
	limiter    *RateLimiter
	breaker    *Breaker
	timeout    time.Duration
	observer   Observer
	logger     *slog.Logger
}

// ClientOption adjusts optional Client wiring.
type ClientOption func(*Client)

// WithObserver attaches a metrics observer.
func WithObserver(obs Observer) ClientOption {
	return func(c *Client) { c.observer = obs }
}

// WithLogger attaches a logger; transitions and held windows log at WARN.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds the protection wrapper for one dependency from its
// configured rate limit and breaker sections.
func NewClient(dependency string, rl config.RateLimit, br config.Breaker, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		dependency: dependency,
		limiter:    NewRateLimiter(rl.Requests, time.Duration(rl.WindowSeconds)*time.Second),
		breaker: NewBreaker(
			dependency,
			br.FailureThreshold,
			time.Duration(br.WindowSeconds)*time.Second,
			time.Duration(br.CooldownSeconds)*time.Second,
			IsTransient,
		),
		timeout: timeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker.OnStateChange(func(dependency string, state BreakerState) {
		c.logger.Warn("circuit state changed",
			logging.String("dependency", dependency),
			logging.String(logging.FieldStatus, string(state)))
		if c.observer != nil {
			c.observer.StateChanged(dependency, state)
		}
	})
	return c
}

// Do runs op under the full protection stack. The rate limiter is consulted
// first so a slow dependency cannot burn the window on rejected calls; the
// timeout applies to op alone, not to time spent waiting for a slot.
func (c *Client) Do(ctx context.Context, op func(context.Context) error) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		return Classify(op(ctx))
	})
	if err == nil {
		c.observe("success")
		return nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		until := time.Now().Add(statusErr.RetryAfter)
		c.limiter.Hold(until)
		c.logger.Warn("dependency requested backoff",
			logging.String("dependency", c.dependency),
			logging.Duration("retry_after", statusErr.RetryAfter))
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		c.observe("rejected")
	case IsTransient(err):
		c.observe("transient")
	default:
		c.observe("permanent")
	}
	return Classify(err)
}

// Health returns the breaker snapshot for this dependency.
func (c *Client) Health() Snapshot {
	return c.breaker.Snapshot()
}

// Dependency returns the name this client protects.
func (c *Client) Dependency() string {
	return c.dependency
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.RequestCompleted(c.dependency, outcome)
	}
}
