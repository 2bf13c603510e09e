package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrCircuitOpen is returned without attempting the call while the
	// dependency's circuit is open (or a half-open trial is already in flight).
	ErrCircuitOpen = errors.New("circuit open")

	// ErrTransient marks failures likely to succeed on retry: timeouts,
	// server errors, connection problems, rate limiting.
	ErrTransient = errors.New("transient dependency failure")

	// ErrPermanent marks failures that will not succeed without changing the
	// request: client errors other than 429, auth failures.
	ErrPermanent = errors.New("permanent dependency failure")
)

// StatusError carries an HTTP status from a dependency, plus the
// server-advised retry delay when one was provided.
type StatusError struct {
	Dependency string
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s returned %d", e.Dependency, e.Code)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Dependency, e.Code, body)
}

// Classify wraps err with ErrTransient or ErrPermanent so callers can branch
// on errors.Is without inspecting transports. Already-classified errors and
// ErrCircuitOpen pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrPermanent) || errors.Is(err, ErrCircuitOpen) {
		return err
	}
	if isPermanent(err) {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err warrants the retry/backoff path. A
// rejected call against an open circuit counts: the processor handles both
// identically.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	return !isPermanent(err)
}

// isPermanent applies the raw-transport classification: client errors other
// than 429 are permanent, everything else (timeouts, 5xx, connection
// failures, unknown conditions) is treated as transient.
func isPermanent(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusTooManyRequests {
			return false
		}
		return statusErr.Code >= 400 && statusErr.Code < 500
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return false
	}

	message := strings.ToLower(err.Error())
	for _, token := range []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "bad request"} {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}
