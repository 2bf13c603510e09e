package indexer

import (
	"context"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/release"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
)

// Resilient decorates a Searcher with the per-dependency protection stack.
type Resilient struct {
	inner Searcher
	guard *resilience.Client
}

var _ Searcher = (*Resilient)(nil)

// NewResilient wraps searcher with guard.
func NewResilient(searcher Searcher, guard *resilience.Client) *Resilient {
	return &Resilient{inner: searcher, guard: guard}
}

// Health exposes the breaker snapshot for diagnostics.
func (r *Resilient) Health() resilience.Snapshot {
	return r.guard.Health()
}

func (r *Resilient) SearchMovie(ctx context.Context, title string, year int) ([]release.Candidate, error) {
	var candidates []release.Candidate
	err := r.guard.Do(ctx, func(ctx context.Context) error {
		var opErr error
		candidates, opErr = r.inner.SearchMovie(ctx, title, year)
		return opErr
	})
	return candidates, err
}
