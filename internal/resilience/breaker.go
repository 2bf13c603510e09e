package resilience

import (
	"context"
	"sync"
	"time"
)

// BreakerState is the circuit position for one dependency.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Snapshot is the read-only health view of a breaker, exposed to the
// /healthz endpoint and the metrics collector.
type Snapshot struct {
	Dependency     string       `json:"dependency"`
	State          BreakerState `json:"state"`
	WindowFailures int          `json:"window_failures"`
	TotalSuccesses uint64       `json:"total_successes"`
	TotalFailures  uint64       `json:"total_failures"`
	LastError      string       `json:"last_error,omitempty"`
	OpenedAt       time.Time    `json:"opened_at"`
}

// SuccessRate returns the fraction of recorded calls that succeeded.
func (s Snapshot) SuccessRate() float64 {
	total := s.TotalSuccesses + s.TotalFailures
	if total == 0 {
		return 1
	}
	return float64(s.TotalSuccesses) / float64(total)
}

// Breaker wraps a fallible operation for one dependency: it opens after
// failureThreshold transient failures inside the trailing window, rejects
// fast while open, and allows a single serialized trial call after cooldown.
type Breaker struct {
	dependency string
	threshold  int
	window     time.Duration
	cooldown   time.Duration
	isFailure  func(error) bool
	now        func() time.Time

	onStateChange func(dependency string, state BreakerState)

	mu             sync.Mutex
	state          BreakerState
	failures       []time.Time
	openedAt       time.Time
	trialInFlight  bool
	totalSuccesses uint64
	totalFailures  uint64
	lastErr        error
}

// NewBreaker builds a closed breaker. isFailure decides which call outcomes
// count toward opening the circuit; pass nil to count every error.
func NewBreaker(dependency string, threshold int, window, cooldown time.Duration, isFailure func(error) bool) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		dependency: dependency,
		threshold:  threshold,
		window:     window,
		cooldown:   cooldown,
		isFailure:  isFailure,
		now:        time.Now,
		state:      StateClosed,
	}
}

// OnStateChange registers a callback fired on every state transition, used
// by the metrics collector. Must be called before the breaker is shared.
func (b *Breaker) OnStateChange(fn func(dependency string, state BreakerState)) {
	b.onStateChange = fn
}

// Do executes op through the breaker. While open it returns ErrCircuitOpen
// without invoking op; while half-open exactly one trial proceeds and
// concurrent callers are rejected as if open.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	trial, err := b.allow()
	if err != nil {
		return err
	}

	opErr := op(ctx)
	b.record(opErr, trial)
	return opErr
}

// Snapshot returns the current health view.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(b.now())

	snap := Snapshot{
		Dependency:     b.dependency,
		State:          b.state,
		WindowFailures: len(b.failures),
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
		OpenedAt:       b.openedAt,
	}
	if b.lastErr != nil {
		snap.LastError = b.lastErr.Error()
	}
	return snap
}

// State returns the current circuit position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.transitionLocked(StateHalfOpen)
		b.trialInFlight = true
		return true, nil
	case StateHalfOpen:
		if b.trialInFlight {
			return false, ErrCircuitOpen
		}
		b.trialInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) record(err error, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if trial {
		b.trialInFlight = false
	}

	if err != nil {
		b.lastErr = err
		b.totalFailures++
	} else {
		b.totalSuccesses++
	}

	if err == nil || !b.isFailure(err) {
		// A permanent failure means the dependency answered; it does not
		// count against circuit health.
		if b.state == StateHalfOpen && trial {
			b.transitionLocked(StateClosed)
			b.failures = nil
		}
		return
	}

	if b.state == StateHalfOpen && trial {
		b.transitionLocked(StateOpen)
		b.openedAt = now
		return
	}

	b.failures = append(b.failures, now)
	b.pruneLocked(now)
	if b.state == StateClosed && len(b.failures) >= b.threshold {
		b.transitionLocked(StateOpen)
		b.openedAt = now
		b.failures = nil
	}
}

func (b *Breaker) pruneLocked(now time.Time) {
	if b.window <= 0 {
		return
	}
	cutoff := now.Add(-b.window)
	idx := 0
	for idx < len(b.failures) && !b.failures[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		b.failures = append(b.failures[:0], b.failures[idx:]...)
	}
}

func (b *Breaker) transitionLocked(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	if b.onStateChange != nil {
		b.onStateChange(b.dependency, state)
	}
}
