package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open", ErrCircuitOpen, true},
		{"wrapped circuit open", fmt.Errorf("call: %w", ErrCircuitOpen), true},
		{"server error", &StatusError{Dependency: "indexer", Code: 500}, true},
		{"bad gateway", &StatusError{Dependency: "indexer", Code: 502}, true},
		{"rate limited", &StatusError{Dependency: "indexer", Code: 429}, true},
		{"unauthorized", &StatusError{Dependency: "indexer", Code: 401}, false},
		{"forbidden", &StatusError{Dependency: "indexer", Code: 403}, false},
		{"not found", &StatusError{Dependency: "indexer", Code: 404}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, true},
		{"net timeout", timeoutErr{}, true},
		{"auth text", errors.New("indexer: invalid api key"), false},
		{"unknown", errors.New("something odd happened"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyWrapsOnce(t *testing.T) {
	base := &StatusError{Dependency: "indexer", Code: 404}
	classified := Classify(base)
	if !errors.Is(classified, ErrPermanent) {
		t.Fatalf("404 should classify permanent, got %v", classified)
	}
	var statusErr *StatusError
	if !errors.As(classified, &statusErr) || statusErr.Code != 404 {
		t.Fatal("original error lost during classification")
	}

	// Re-classifying must not re-wrap.
	if again := Classify(classified); again != classified {
		t.Error("already-classified error was wrapped again")
	}
	if Classify(nil) != nil {
		t.Error("nil must classify to nil")
	}
}

func TestClassifyTransient(t *testing.T) {
	classified := Classify(&StatusError{Dependency: "client", Code: 503})
	if !errors.Is(classified, ErrTransient) {
		t.Fatalf("503 should classify transient, got %v", classified)
	}
	if errors.Is(classified, ErrPermanent) {
		t.Fatal("transient error must not also match permanent")
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Dependency: "indexer", Code: 429, RetryAfter: 30 * time.Second}
	if got := err.Error(); got != "indexer returned 429" {
		t.Errorf("unexpected message: %q", got)
	}
	err.Body = "slow down"
	if got := err.Error(); got != "indexer returned 429: slow down" {
		t.Errorf("unexpected message: %q", got)
	}
}
