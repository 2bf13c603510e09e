package downloader

import (
	"context"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
)

// Resilient decorates a Client with the per-dependency protection stack so
// callers get rate limiting, timeouts, and circuit breaking on every call.
type Resilient struct {
	inner Client
	guard *resilience.Client
}

var _ Client = (*Resilient)(nil)

// NewResilient wraps client with guard.
func NewResilient(client Client, guard *resilience.Client) *Resilient {
	return &Resilient{inner: client, guard: guard}
}

// Health exposes the breaker snapshot for diagnostics.
func (r *Resilient) Health() resilience.Snapshot {
	return r.guard.Health()
}

func (r *Resilient) Add(ctx context.Context, downloadURL string) (string, error) {
	var clientID string
	err := r.guard.Do(ctx, func(ctx context.Context) error {
		var opErr error
		clientID, opErr = r.inner.Add(ctx, downloadURL)
		return opErr
	})
	return clientID, err
}

func (r *Resilient) Status(ctx context.Context, clientID string) (TransferStatus, error) {
	var status TransferStatus
	err := r.guard.Do(ctx, func(ctx context.Context) error {
		var opErr error
		status, opErr = r.inner.Status(ctx, clientID)
		return opErr
	})
	return status, err
}

func (r *Resilient) Pause(ctx context.Context, clientID string) error {
	return r.guard.Do(ctx, func(ctx context.Context) error {
		return r.inner.Pause(ctx, clientID)
	})
}

func (r *Resilient) Resume(ctx context.Context, clientID string) error {
	return r.guard.Do(ctx, func(ctx context.Context) error {
		return r.inner.Resume(ctx, clientID)
	})
}

func (r *Resilient) Cancel(ctx context.Context, clientID string) error {
	return r.guard.Do(ctx, func(ctx context.Context) error {
		return r.inner.Cancel(ctx, clientID)
	})
}
