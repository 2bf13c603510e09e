package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/decision"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/downloader"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/events"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/indexer"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/release"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/service"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/testsupport"
)

type stubClient struct {
	mu        sync.Mutex
	cancelErr error
	cancelled []string
	paused    []string
	resumed   []string
}

func (s *stubClient) Add(context.Context, string) (string, error) { return "hash-1", nil }

func (s *stubClient) Status(context.Context, string) (downloader.TransferStatus, error) {
	return downloader.TransferStatus{State: downloader.TransferDownloading}, nil
}

func (s *stubClient) Pause(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = append(s.paused, clientID)
	return nil
}

func (s *stubClient) Resume(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = append(s.resumed, clientID)
	return nil
}

func (s *stubClient) Cancel(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, clientID)
	return s.cancelErr
}

type stubSearcher struct {
	candidates []release.Candidate
	err        error
}

func (s *stubSearcher) SearchMovie(context.Context, string, int) ([]release.Candidate, error) {
	return s.candidates, s.err
}

var _ indexer.Searcher = (*stubSearcher)(nil)

type fixture struct {
	svc    *service.QueueService
	store  *queue.Store
	client *stubClient
	bus    *events.Bus
}

func newFixture(t *testing.T, searcher indexer.Searcher) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &stubClient{}
	bus := events.NewBus(logging.NewNop())
	t.Cleanup(bus.Close)

	svc, err := service.New(service.Config{
		Store:       store,
		Bus:         bus,
		Client:      client,
		Searcher:    searcher,
		Preferences: decision.DefaultPreferences(),
		MaxAttempts: 3,
		Logger:      logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, store: store, client: client, bus: bus}
}

func acceptedCandidate() release.Candidate {
	return release.Candidate{
		ID:          "rel-1",
		Title:       "Example Movie 2024 1080p BluRay x264-GROUP",
		DownloadURL: "magnet:?xt=urn:btih:abc",
		SizeBytes:   8 << 30,
		Seeders:     20,
	}
}

func TestGrab(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ch, cancel := f.bus.Subscribe()
	defer cancel()

	item, err := f.svc.Grab(ctx, 42, acceptedCandidate(), queue.PriorityHigh)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	if item.Status != queue.StatusQueued {
		t.Errorf("status = %s, want queued", item.Status)
	}
	if item.AttemptCount != 0 || item.MaxAttempts != 3 {
		t.Errorf("attempt budget wrong: %d/%d", item.AttemptCount, item.MaxAttempts)
	}
	if item.Priority != queue.PriorityHigh {
		t.Errorf("priority = %s, want high", item.Priority)
	}

	event := <-ch
	if event.Type != events.QueueItemAdded || event.ItemID != item.ID {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestGrabRejectsEmptyURL(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Grab(context.Background(), 1, release.Candidate{Title: "no url"}, queue.PriorityNormal)
	if !errors.Is(err, service.ErrInvalidCandidate) {
		t.Fatalf("expected ErrInvalidCandidate, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Get(context.Background(), 12345)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPauseResumeCycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Grab(ctx, 1, acceptedCandidate(), queue.PriorityNormal)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}

	// Pausing a queued item is not a legal transition.
	if _, err := f.svc.Pause(ctx, item.ID); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for queued pause, got %v", err)
	}

	if _, err := f.store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusDownloading, func(it *queue.Item) {
		it.ClientID = "hash-1"
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	paused, err := f.svc.Pause(ctx, item.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != queue.StatusPaused {
		t.Errorf("status = %s, want paused", paused.Status)
	}
	if len(f.client.paused) != 1 {
		t.Errorf("remote pause calls = %d, want 1", len(f.client.paused))
	}

	// Double pause fails, resume restores downloading.
	if _, err := f.svc.Pause(ctx, item.ID); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for double pause, got %v", err)
	}
	resumed, err := f.svc.Resume(ctx, item.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != queue.StatusDownloading {
		t.Errorf("status = %s, want downloading", resumed.Status)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Grab(ctx, 1, acceptedCandidate(), queue.PriorityNormal)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}

	removed, err := f.svc.Remove(ctx, item.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != queue.StatusRemoved {
		t.Fatalf("status = %s, want removed", removed.Status)
	}

	again, err := f.svc.Remove(ctx, item.ID)
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if again.Status != queue.StatusRemoved {
		t.Fatalf("second remove status = %s", again.Status)
	}
}

func TestRemoveSurvivesFailedRemoteCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.client.cancelErr = fmt.Errorf("client unreachable")

	item, err := f.svc.Grab(ctx, 1, acceptedCandidate(), queue.PriorityNormal)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	if _, err := f.store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusDownloading, func(it *queue.Item) {
		it.ClientID = "hash-1"
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	removed, err := f.svc.Remove(ctx, item.ID)
	if err != nil {
		t.Fatalf("remove with failing cancel: %v", err)
	}
	if removed.Status != queue.StatusRemoved {
		t.Fatalf("status = %s, want removed", removed.Status)
	}
	if len(f.client.cancelled) != 1 {
		t.Errorf("cancel attempts = %d, want 1", len(f.client.cancelled))
	}
}

func TestRetryResetsAttemptBudget(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	item, err := f.svc.Grab(ctx, 1, acceptedCandidate(), queue.PriorityNormal)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}

	// Retry on a non-failed item is rejected.
	if _, err := f.svc.Retry(ctx, item.ID); !errors.Is(err, service.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}

	if _, err := f.store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusFailed, func(it *queue.Item) {
		it.AttemptCount = 3
		it.ErrorMessage = "gave up"
		it.ClientID = "hash-stale"
	}); err != nil {
		t.Fatalf("fail item: %v", err)
	}

	retried, err := f.svc.Retry(ctx, item.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != queue.StatusRetrying {
		t.Errorf("status = %s, want retrying", retried.Status)
	}
	if retried.AttemptCount != 0 {
		t.Errorf("attempt count = %d, want 0", retried.AttemptCount)
	}
	if retried.ClientID != "" || retried.ErrorMessage != "" {
		t.Errorf("stale fields not cleared: %+v", retried)
	}
}

func TestSearchAndGrab(t *testing.T) {
	searcher := &stubSearcher{candidates: []release.Candidate{
		{
			ID:          "weak",
			Title:       "Example Movie 2024 480p WEBRip x264-LOW",
			DownloadURL: "magnet:?xt=urn:btih:weak",
			SizeBytes:   1 << 30,
			Seeders:     5,
		},
		acceptedCandidate(),
	}}
	f := newFixture(t, searcher)

	item, winner, err := f.svc.SearchAndGrab(context.Background(), 42, "Example Movie", 2024, queue.PriorityNormal)
	if err != nil {
		t.Fatalf("search and grab: %v", err)
	}
	if winner.Candidate.ID != "rel-1" {
		t.Errorf("winner = %q, want rel-1", winner.Candidate.ID)
	}
	if item.ReleaseID != "rel-1" {
		t.Errorf("item release = %q, want rel-1", item.ReleaseID)
	}
}

func TestSearchAndGrabNoAcceptableRelease(t *testing.T) {
	searcher := &stubSearcher{candidates: []release.Candidate{
		{
			ID:          "dead",
			Title:       "Example Movie 2024 1080p BluRay x264-GROUP",
			DownloadURL: "magnet:?xt=urn:btih:dead",
			Seeders:     0,
		},
	}}
	f := newFixture(t, searcher)

	_, _, err := f.svc.SearchAndGrab(context.Background(), 1, "Example Movie", 2024, queue.PriorityNormal)
	if !errors.Is(err, service.ErrNoAcceptableRelease) {
		t.Fatalf("expected ErrNoAcceptableRelease, got %v", err)
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Grab(ctx, 1, acceptedCandidate(), queue.PriorityNormal)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	second := acceptedCandidate()
	second.ID = "rel-2"
	if _, err := f.svc.Grab(ctx, 2, second, queue.PriorityNormal); err != nil {
		t.Fatalf("grab: %v", err)
	}

	if _, err := f.store.CompareAndSetStatus(ctx, first.ID, queue.StatusQueued, queue.StatusDownloading, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := f.store.CompareAndSetStatus(ctx, first.ID, queue.StatusDownloading, queue.StatusCompleted, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	stats, err := f.svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.Total != 2 || stats.Completed != 1 || stats.Queued != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.CompletedLastDay != 1 {
		t.Errorf("completed last day = %d, want 1", stats.CompletedLastDay)
	}
}
