package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/decision"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/downloader"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/events"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/indexer"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/release"
)

// QueueService coordinates queue mutations between the store, the download
// client, and the event bus. All user-facing surfaces go through it; the
// background processor shares the same store and bus.
type QueueService struct {
	store      *queue.Store
	bus        *events.Bus
	client     downloader.Client
	searcher   indexer.Searcher
	prefs      decision.Preferences
	maxAttempt int
	logger     *slog.Logger
}

// Config carries the service dependencies. Searcher may be nil when no
// indexer is configured; SearchAndGrab then fails fast.
type Config struct {
	Store       *queue.Store
	Bus         *events.Bus
	Client      downloader.Client
	Searcher    indexer.Searcher
	Preferences decision.Preferences
	MaxAttempts int
	Logger      *slog.Logger
}

// New builds a QueueService.
func New(cfg Config) (*QueueService, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QueueService{
		store:      cfg.Store,
		bus:        cfg.Bus,
		client:     cfg.Client,
		searcher:   cfg.Searcher,
		prefs:      cfg.Preferences,
		maxAttempt: cfg.MaxAttempts,
		logger:     logging.NewComponentLogger(logger, "queue-service"),
	}, nil
}

// Grab enqueues a release for download. The item starts Queued with a fresh
// attempt budget; the background processor picks it up on its next pass.
func (s *QueueService) Grab(ctx context.Context, movieID int64, candidate release.Candidate, priority queue.Priority) (*queue.Item, error) {
	if candidate.DownloadURL == "" {
		return nil, ErrInvalidCandidate
	}

	item := &queue.Item{
		MovieID:     movieID,
		ReleaseID:   candidate.ID,
		Title:       candidate.Title,
		DownloadURL: candidate.DownloadURL,
		Status:      queue.StatusQueued,
		Priority:    priority,
		TotalBytes:  candidate.SizeBytes,
		MaxAttempts: s.maxAttempt,
	}
	item, err := s.store.Insert(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("enqueue release: %w", err)
	}

	s.logger.Info("release grabbed",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int64(logging.FieldMovieID, movieID),
		logging.String("title", item.Title),
		logging.String("priority", priority.String()))
	s.bus.Publish(events.New(events.QueueItemAdded, item.ID, movieID, item.Title))
	return item, nil
}

// SearchAndGrab queries the indexer, scores the results, and grabs the
// winner. ErrNoAcceptableRelease signals that every candidate was rejected.
func (s *QueueService) SearchAndGrab(ctx context.Context, movieID int64, title string, year int, priority queue.Priority) (*queue.Item, decision.Decision, error) {
	if s.searcher == nil {
		return nil, decision.Decision{}, errors.New("no indexer configured")
	}

	candidates, err := s.searcher.SearchMovie(ctx, title, year)
	if err != nil {
		return nil, decision.Decision{}, fmt.Errorf("search indexer: %w", err)
	}
	winner, ok := decision.Select(candidates, s.prefs)
	if !ok {
		return nil, decision.Decision{}, fmt.Errorf("%w: %d candidates evaluated", ErrNoAcceptableRelease, len(candidates))
	}

	item, err := s.Grab(ctx, movieID, winner.Candidate, priority)
	if err != nil {
		return nil, winner, err
	}
	return item, winner, nil
}

// Get fetches one item.
func (s *QueueService) Get(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, queue.ErrNotFound
	}
	return item, nil
}

// List returns items filtered by status, or all items when no status is given.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error) {
	return s.store.List(ctx, statuses...)
}

// Pause suspends an active download. Only Downloading items can pause.
func (s *QueueService) Pause(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != queue.StatusDownloading {
		return nil, fmt.Errorf("%w: %s -> %s", queue.ErrInvalidTransition, item.Status, queue.StatusPaused)
	}

	if item.ClientID != "" && s.client != nil {
		if err := s.client.Pause(ctx, item.ClientID); err != nil {
			return nil, fmt.Errorf("pause transfer: %w", err)
		}
	}
	return s.store.CompareAndSetStatus(ctx, id, queue.StatusDownloading, queue.StatusPaused, nil)
}

// Resume continues a paused download.
func (s *QueueService) Resume(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != queue.StatusPaused {
		return nil, fmt.Errorf("%w: %s -> %s", queue.ErrInvalidTransition, item.Status, queue.StatusDownloading)
	}

	if item.ClientID != "" && s.client != nil {
		if err := s.client.Resume(ctx, item.ClientID); err != nil {
			return nil, fmt.Errorf("resume transfer: %w", err)
		}
	}
	return s.store.CompareAndSetStatus(ctx, id, queue.StatusPaused, queue.StatusDownloading, nil)
}

// Remove takes an item out of the queue, cancelling the remote transfer when
// one exists. Removal is idempotent: removing a Removed item succeeds, and a
// failed remote cancel does not block the local state change.
func (s *QueueService) Remove(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status == queue.StatusRemoved {
		return item, nil
	}

	if item.ClientID != "" && s.client != nil && !item.Status.IsTerminal() {
		if cancelErr := s.client.Cancel(ctx, item.ClientID); cancelErr != nil {
			// Best effort; the transfer may already be gone from the client.
			s.logger.Warn("remote cancel failed",
				logging.Int64(logging.FieldItemID, id),
				logging.String(logging.FieldClientID, item.ClientID),
				logging.Error(cancelErr))
		}
	}

	removed, err := s.store.CompareAndSetStatus(ctx, id, item.Status, queue.StatusRemoved, nil)
	if errors.Is(err, queue.ErrStaleTransition) {
		// Re-read once; a concurrent transition may have beaten us but the
		// item is removable from any state.
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == queue.StatusRemoved {
			return current, nil
		}
		return s.store.CompareAndSetStatus(ctx, id, current.Status, queue.StatusRemoved, nil)
	}
	return removed, err
}

// Retry moves a failed item back into dispatch rotation with a fresh attempt
// budget.
func (s *QueueService) Retry(ctx context.Context, id int64) (*queue.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != queue.StatusFailed {
		return nil, fmt.Errorf("%w: currently %s", ErrNotRetryable, item.Status)
	}

	return s.store.CompareAndSetStatus(ctx, id, queue.StatusFailed, queue.StatusRetrying, func(it *queue.Item) {
		it.AttemptCount = 0
		it.NotBefore = nil
		it.ErrorMessage = ""
		it.ClientID = ""
		it.ResetProgress()
	})
}

// SetPriority reorders a pending item within the dispatch queue.
func (s *QueueService) SetPriority(ctx context.Context, id int64, priority queue.Priority) error {
	return s.store.SetPriority(ctx, id, priority)
}

// Statistics aggregates queue counts plus recent throughput.
type Statistics struct {
	queue.HealthSummary
	CompletedLastDay int
}

// Statistics reports queue health and completions over the trailing day.
func (s *QueueService) Statistics(ctx context.Context) (Statistics, error) {
	health, err := s.store.Health(ctx)
	if err != nil {
		return Statistics{}, err
	}
	completed, err := s.store.CompletedSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{HealthSummary: health, CompletedLastDay: completed}, nil
}
