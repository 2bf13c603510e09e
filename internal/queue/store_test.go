package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/testsupport"
)

func newTestStore(t *testing.T) *queue.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStore(t, cfg)
}

func insertItem(t *testing.T, store *queue.Store, mutate func(*queue.Item)) *queue.Item {
	t.Helper()
	item := &queue.Item{
		MovieID:     42,
		Title:       "Example Movie 2024 1080p BluRay x264-GROUP",
		DownloadURL: "magnet:?xt=urn:btih:abc123",
		Status:      queue.StatusQueued,
		Priority:    queue.PriorityNormal,
		MaxAttempts: 3,
	}
	if mutate != nil {
		mutate(item)
	}
	inserted, err := store.Insert(context.Background(), item)
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	return inserted
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := insertItem(t, store, nil)
	if item.ID == 0 {
		t.Fatal("expected assigned id")
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected item, got nil")
	}
	if fetched.Title != item.Title || fetched.Status != queue.StatusQueued {
		t.Errorf("round trip mismatch: %+v", fetched)
	}
	if fetched.CreatedAt.IsZero() || fetched.UpdatedAt.IsZero() {
		t.Error("timestamps not persisted")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	item, err := store.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil for missing item, got %+v", item)
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	item := insertItem(t, store, nil)

	updated, err := store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusDownloading, func(it *queue.Item) {
		it.ClientID = "hash-1"
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Status != queue.StatusDownloading || updated.ClientID != "hash-1" {
		t.Errorf("unexpected state after transition: %+v", updated)
	}

	// The stored row must reflect the same values.
	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if fetched.Status != queue.StatusDownloading || fetched.ClientID != "hash-1" {
		t.Errorf("persisted state mismatch: %+v", fetched)
	}
}

func TestCompareAndSetStatusStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	item := insertItem(t, store, nil)

	if _, err := store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusRemoved, nil); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err := store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusDownloading, nil)
	if !errors.Is(err, queue.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
}

func TestCompareAndSetStatusInvalidEdge(t *testing.T) {
	store := newTestStore(t)
	item := insertItem(t, store, nil)

	_, err := store.CompareAndSetStatus(context.Background(), item.ID, queue.StatusQueued, queue.StatusCompleted, nil)
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompareAndSetStatusMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CompareAndSetStatus(context.Background(), 777, queue.StatusQueued, queue.StatusDownloading, nil)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNextForDispatchOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := insertItem(t, store, func(it *queue.Item) {
		it.Title = "low"
		it.Priority = queue.PriorityLow
	})
	firstNormal := insertItem(t, store, func(it *queue.Item) {
		it.Title = "first-normal"
	})
	time.Sleep(2 * time.Millisecond)
	secondNormal := insertItem(t, store, func(it *queue.Item) {
		it.Title = "second-normal"
	})
	high := insertItem(t, store, func(it *queue.Item) {
		it.Title = "high"
		it.Priority = queue.PriorityHigh
	})

	items, err := store.NextForDispatch(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("next for dispatch: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}

	wantOrder := []int64{high.ID, firstNormal.ID, secondNormal.ID, low.ID}
	for i, want := range wantOrder {
		if items[i].ID != want {
			t.Errorf("position %d: got item %d (%s), want %d", i, items[i].ID, items[i].Title, want)
		}
	}
}

func TestNextForDispatchHonorsBackoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ready := insertItem(t, store, func(it *queue.Item) {
		it.Title = "ready"
	})
	future := now.Add(time.Hour)
	insertItem(t, store, func(it *queue.Item) {
		it.Title = "backing-off"
		it.Status = queue.StatusRetrying
		it.NotBefore = &future
	})

	items, err := store.NextForDispatch(ctx, now, 10)
	if err != nil {
		t.Fatalf("next for dispatch: %v", err)
	}
	if len(items) != 1 || items[0].ID != ready.ID {
		t.Fatalf("expected only the ready item, got %d items", len(items))
	}

	// The delayed item becomes eligible once the clock passes its window.
	items, err = store.NextForDispatch(ctx, now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("next for dispatch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected both items after backoff expiry, got %d", len(items))
	}
}

func TestUpdateProgressScopedToActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := insertItem(t, store, nil)
	if err := store.UpdateProgress(ctx, item.ID, 10, 100, 5, 18); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	// Still queued, so the write must not have landed.
	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if fetched.DownloadedBytes != 0 {
		t.Errorf("progress applied to non-active item: %+v", fetched)
	}

	if _, err := store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusDownloading, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.UpdateProgress(ctx, item.ID, 10, 100, 5, 18); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	fetched, err = store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if fetched.DownloadedBytes != 10 || fetched.TotalBytes != 100 || fetched.SpeedBps != 5 || fetched.ETASeconds != 18 {
		t.Errorf("progress not applied: %+v", fetched)
	}
}

func TestPurgeTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := insertItem(t, store, nil)
	if _, err := store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusRemoved, nil); err != nil {
		t.Fatalf("remove: %v", err)
	}
	active := insertItem(t, store, func(it *queue.Item) { it.Title = "active" })

	purged, err := store.PurgeTerminal(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged row, got %d", purged)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != active.ID {
		t.Fatalf("expected only the active item to survive, got %d items", len(remaining))
	}
}

func TestResetOrphanedDispatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	orphan := insertItem(t, store, nil)
	if _, err := store.CompareAndSetStatus(ctx, orphan.ID, queue.StatusQueued, queue.StatusDownloading, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	owned := insertItem(t, store, func(it *queue.Item) { it.Title = "owned" })
	if _, err := store.CompareAndSetStatus(ctx, owned.ID, queue.StatusQueued, queue.StatusDownloading, func(it *queue.Item) {
		it.ClientID = "hash-2"
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	reset, err := store.ResetOrphanedDispatch(ctx)
	if err != nil {
		t.Fatalf("reset orphaned: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset row, got %d", reset)
	}

	fetched, err := store.GetByID(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if fetched.Status != queue.StatusQueued {
		t.Errorf("orphan not requeued: %s", fetched.Status)
	}
	fetched, err = store.GetByID(ctx, owned.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if fetched.Status != queue.StatusDownloading {
		t.Errorf("owned download disturbed: %s", fetched.Status)
	}
}

func TestRetryFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := insertItem(t, store, nil)
	if _, err := store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusFailed, func(it *queue.Item) {
		it.AttemptCount = 3
		it.ErrorMessage = "gave up"
	}); err != nil {
		t.Fatalf("fail item: %v", err)
	}

	updated, err := store.RetryFailed(ctx, item.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 updated row, got %d", updated)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if fetched.Status != queue.StatusRetrying {
		t.Errorf("status = %s, want retrying", fetched.Status)
	}
	if fetched.AttemptCount != 0 {
		t.Errorf("attempt count = %d, want 0", fetched.AttemptCount)
	}
	if fetched.ErrorMessage != "" {
		t.Errorf("error message not cleared: %q", fetched.ErrorMessage)
	}
}

func TestStatsAndHealth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertItem(t, store, nil)
	insertItem(t, store, nil)
	item := insertItem(t, store, nil)
	if _, err := store.CompareAndSetStatus(ctx, item.ID, queue.StatusQueued, queue.StatusDownloading, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Total != 3 || health.Queued != 2 || health.Downloading != 1 {
		t.Errorf("unexpected health: %+v", health)
	}

	active, err := store.CountActiveDownloads(ctx)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 1 {
		t.Errorf("active downloads = %d, want 1", active)
	}
}
