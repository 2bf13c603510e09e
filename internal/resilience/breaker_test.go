package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Now()
	b := NewBreaker("test", threshold, time.Minute, cooldown, IsTransient)
	b.now = func() time.Time { return now }
	return b, &now
}

func failingOp(calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return Classify(&StatusError{Dependency: "test", Code: 503})
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failingOp(&calls)); err == nil {
			t.Fatalf("call %d should fail", i)
		}
	}
	if state := b.State(); state != StateOpen {
		t.Fatalf("state = %s, want open", state)
	}

	// While open the op must not be invoked.
	err := b.Do(ctx, failingOp(&calls))
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 3 {
		t.Errorf("op invoked %d times, want 3", calls)
	}
}

func TestBreakerHalfOpenTrialCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	calls := 0
	_ = b.Do(ctx, failingOp(&calls))
	if state := b.State(); state != StateOpen {
		t.Fatalf("state = %s, want open", state)
	}

	*now = now.Add(2 * time.Minute)
	err := b.Do(ctx, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if state := b.State(); state != StateClosed {
		t.Fatalf("state after successful trial = %s, want closed", state)
	}
}

func TestBreakerHalfOpenTrialReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	calls := 0
	_ = b.Do(ctx, failingOp(&calls))
	*now = now.Add(2 * time.Minute)

	if err := b.Do(ctx, failingOp(&calls)); err == nil {
		t.Fatal("trial should fail")
	}
	if state := b.State(); state != StateOpen {
		t.Fatalf("state after failed trial = %s, want open", state)
	}
}

func TestBreakerHalfOpenSerializesTrial(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	calls := 0
	_ = b.Do(ctx, failingOp(&calls))
	*now = now.Add(2 * time.Minute)

	// First caller takes the trial slot and blocks inside the op; a second
	// caller must be rejected as if the circuit were open.
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	if err := b.Do(ctx, func(context.Context) error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("concurrent half-open call should be rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if state := b.State(); state != StateClosed {
		t.Fatalf("state = %s, want closed", state)
	}
}

func TestBreakerPermanentErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	permanent := func(context.Context) error {
		return Classify(&StatusError{Dependency: "test", Code: 401})
	}
	for i := 0; i < 10; i++ {
		if err := b.Do(ctx, permanent); err == nil {
			t.Fatal("permanent op should return its error")
		}
	}
	if state := b.State(); state != StateClosed {
		t.Fatalf("permanent failures tripped the breaker: %s", state)
	}

	snap := b.Snapshot()
	if snap.TotalFailures != 10 {
		t.Errorf("total failures = %d, want 10", snap.TotalFailures)
	}
}

func TestBreakerSnapshot(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, func(context.Context) error { return nil })
	calls := 0
	_ = b.Do(ctx, failingOp(&calls))

	snap := b.Snapshot()
	if snap.Dependency != "test" || snap.State != StateClosed {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.TotalSuccesses != 1 || snap.TotalFailures != 1 {
		t.Errorf("totals = %d/%d, want 1/1", snap.TotalSuccesses, snap.TotalFailures)
	}
	if snap.WindowFailures != 1 {
		t.Errorf("window failures = %d, want 1", snap.WindowFailures)
	}
	if rate := snap.SuccessRate(); rate != 0.5 {
		t.Errorf("success rate = %v, want 0.5", rate)
	}
	if snap.LastError == "" {
		t.Error("last error missing from snapshot")
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	var states []BreakerState
	b.OnStateChange(func(_ string, state BreakerState) {
		states = append(states, state)
	})

	ctx := context.Background()
	calls := 0
	_ = b.Do(ctx, failingOp(&calls))
	*now = now.Add(2 * time.Minute)
	_ = b.Do(ctx, func(context.Context) error { return nil })

	want := []BreakerState{StateOpen, StateHalfOpen, StateClosed}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", states, want)
		}
	}
}
