package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/config"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/downloader"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/events"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
)

// Processor runs the background loops that move queue items through their
// lifecycle: dispatch picks up eligible items and hands them to the download
// client, sync mirrors remote transfer progress back into the store, and
// cleanup compacts aged-out terminal rows.
type Processor struct {
	cfg    config.Queue
	store  *queue.Store
	client downloader.Client
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
	onPass func(loop string)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Processor. The client should already be wrapped with the
// resilience stack.
func New(cfg config.Queue, store *queue.Store, client downloader.Client, bus *events.Bus, logger *slog.Logger) (*Processor, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if client == nil {
		return nil, errors.New("download client is required")
	}
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	return &Processor{
		cfg:    cfg,
		store:  store,
		client: client,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "processor"),
		now:    time.Now,
	}, nil
}

// OnPassComplete registers a callback invoked after each successful loop
// pass, keyed by loop name. Must be called before Start.
func (p *Processor) OnPassComplete(fn func(loop string)) {
	p.onPass = fn
}

// Start launches the background loops.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(3)
	p.mu.Unlock()

	go p.runLoop(runCtx, "dispatch", p.dispatchInterval(), p.DispatchOnce)
	go p.runLoop(runCtx, "sync", p.syncInterval(), p.SyncOnce)
	go p.runLoop(runCtx, "cleanup", p.cleanupInterval(), p.CleanupOnce)
	return nil
}

// Stop terminates the background loops and waits for them to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Processor) runLoop(ctx context.Context, name string, interval time.Duration, step func(context.Context) error) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := step(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				p.logger.Error("background step failed",
					logging.String("loop", name),
					logging.Error(err))
			}
		} else if p.onPass != nil {
			p.onPass(name)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce performs a single dispatch pass: it fills the free download
// slots with the highest-priority eligible items. Exposed for tests and the
// CLI's one-shot mode.
func (p *Processor) DispatchOnce(ctx context.Context) error {
	active, err := p.store.CountActiveDownloads(ctx)
	if err != nil {
		return fmt.Errorf("count active downloads: %w", err)
	}
	free := p.cfg.MaxConcurrentDownloads - active
	if free <= 0 {
		return nil
	}

	items, err := p.store.NextForDispatch(ctx, p.now(), free)
	if err != nil {
		return fmt.Errorf("select dispatchable items: %w", err)
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.dispatchItem(ctx, item)
	}
	return nil
}

func (p *Processor) dispatchItem(ctx context.Context, item *queue.Item) {
	clientID, err := p.client.Add(ctx, item.DownloadURL)
	if err != nil {
		p.recordFailure(ctx, item, fmt.Errorf("add transfer: %w", err))
		return
	}

	updated, err := p.store.CompareAndSetStatus(ctx, item.ID, item.Status, queue.StatusDownloading, func(it *queue.Item) {
		it.ClientID = clientID
		it.ErrorMessage = ""
		it.ResetProgress()
	})
	if err != nil {
		if errors.Is(err, queue.ErrStaleTransition) || errors.Is(err, queue.ErrNotFound) {
			// The item was removed while the add call was in flight; the
			// fresh transfer must not be left running unowned.
			if cancelErr := p.client.Cancel(ctx, clientID); cancelErr != nil {
				p.logger.Warn("orphaned transfer cancel failed",
					logging.String(logging.FieldClientID, clientID),
					logging.Error(cancelErr))
			}
			return
		}
		p.logger.Error("dispatch transition failed",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}

	p.logger.Info("download started",
		logging.Int64(logging.FieldItemID, updated.ID),
		logging.String("title", updated.Title),
		logging.String(logging.FieldClientID, clientID),
		logging.Int(logging.FieldAttempt, updated.AttemptCount))

	event := events.New(events.DownloadStarted, updated.ID, updated.MovieID, updated.Title)
	event.ClientID = clientID
	p.bus.Publish(event)
}

// SyncOnce performs a single sync pass: every active item with a client
// handle gets its remote progress mirrored into the store, and completed or
// broken transfers move on.
func (p *Processor) SyncOnce(ctx context.Context) error {
	items, err := p.store.List(ctx, queue.StatusDownloading, queue.StatusPaused)
	if err != nil {
		return fmt.Errorf("list active items: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if item.ClientID == "" {
			continue
		}
		p.syncItem(ctx, item)
	}
	return nil
}

func (p *Processor) syncItem(ctx context.Context, item *queue.Item) {
	status, err := p.client.Status(ctx, item.ClientID)
	if err != nil {
		if resilience.IsTransient(err) {
			// The client will answer again soon; keep the last known progress.
			p.logger.Debug("status check deferred",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Error(err))
			return
		}
		if item.Status == queue.StatusDownloading {
			p.recordFailure(ctx, item, fmt.Errorf("query transfer status: %w", err))
		}
		return
	}

	switch status.State {
	case downloader.TransferComplete:
		// A remote completion for a locally paused item surfaces on the next
		// sync after the user resumes; Paused only permits resume or removal.
		if item.Status != queue.StatusDownloading {
			return
		}
		completed, err := p.store.CompareAndSetStatus(ctx, item.ID, queue.StatusDownloading, queue.StatusCompleted, func(it *queue.Item) {
			it.DownloadedBytes = status.TotalBytes
			it.TotalBytes = status.TotalBytes
			it.SpeedBps = 0
			it.ETASeconds = 0
			it.ErrorMessage = ""
		})
		if err != nil {
			if !errors.Is(err, queue.ErrStaleTransition) {
				p.logger.Error("completion transition failed",
					logging.Int64(logging.FieldItemID, item.ID),
					logging.Error(err))
			}
			return
		}
		p.logger.Info("download complete",
			logging.Int64(logging.FieldItemID, completed.ID),
			logging.String("title", completed.Title))
		event := events.New(events.DownloadComplete, completed.ID, completed.MovieID, completed.Title)
		event.ClientID = completed.ClientID
		p.bus.Publish(event)

	case downloader.TransferErrored, downloader.TransferMissing:
		// Paused items only leave Paused through resume or removal; a broken
		// transfer underneath one surfaces once the user resumes.
		if item.Status != queue.StatusDownloading {
			return
		}
		cause := errors.New("transfer errored in download client")
		if status.State == downloader.TransferMissing {
			cause = errors.New("transfer disappeared from download client")
		}
		p.recordFailure(ctx, item, cause)

	default:
		if err := p.store.UpdateProgress(ctx, item.ID, status.DownloadedBytes, status.TotalBytes, status.SpeedBps, status.ETASeconds); err != nil {
			p.logger.Error("progress update failed",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Error(err))
			return
		}
		event := events.New(events.DownloadProgress, item.ID, item.MovieID, item.Title)
		event.ClientID = item.ClientID
		event.SpeedBps = status.SpeedBps
		if status.TotalBytes > 0 {
			event.Progress = float64(status.DownloadedBytes) / float64(status.TotalBytes)
		}
		p.bus.Publish(event)
	}
}

// recordFailure routes a failed attempt: transient causes re-enter dispatch
// after backoff until the attempt budget runs out, permanent causes fail the
// item immediately. Exactly one DownloadFailed event fires per failed item.
func (p *Processor) recordFailure(ctx context.Context, item *queue.Item, cause error) {
	attempt := item.AttemptCount + 1
	transient := resilience.IsTransient(cause)

	if transient && attempt < item.MaxAttempts {
		notBefore := p.now().Add(Delay(attempt-1, p.backoffBase(), p.backoffCap()))
		_, err := p.store.CompareAndSetStatus(ctx, item.ID, item.Status, queue.StatusRetrying, func(it *queue.Item) {
			it.AttemptCount = attempt
			it.NotBefore = &notBefore
			it.ErrorMessage = cause.Error()
			it.ClientID = ""
			it.ResetProgress()
		})
		if err != nil && !errors.Is(err, queue.ErrStaleTransition) {
			p.logger.Error("retry transition failed",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Error(err))
			return
		}
		if err == nil {
			p.logger.Warn("attempt failed, will retry",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Int(logging.FieldAttempt, attempt),
				logging.String("not_before", notBefore.Format(time.RFC3339)),
				logging.Error(cause))
		}
		return
	}

	failed, err := p.store.CompareAndSetStatus(ctx, item.ID, item.Status, queue.StatusFailed, func(it *queue.Item) {
		it.AttemptCount = attempt
		it.NotBefore = nil
		it.ErrorMessage = cause.Error()
	})
	if err != nil {
		if !errors.Is(err, queue.ErrStaleTransition) {
			p.logger.Error("failure transition failed",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Error(err))
		}
		return
	}

	p.logger.Error("item failed",
		logging.Int64(logging.FieldItemID, failed.ID),
		logging.String("title", failed.Title),
		logging.Int(logging.FieldAttempt, failed.AttemptCount),
		logging.Bool("transient", transient),
		logging.Error(cause))

	event := events.New(events.DownloadFailed, failed.ID, failed.MovieID, failed.Title)
	event.Err = cause.Error()
	p.bus.Publish(event)
}

// CleanupOnce purges Completed and Removed rows older than the retention
// window.
func (p *Processor) CleanupOnce(ctx context.Context) error {
	retention := time.Duration(p.cfg.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return nil
	}
	purged, err := p.store.PurgeTerminal(ctx, p.now().Add(-retention))
	if err != nil {
		return fmt.Errorf("purge terminal items: %w", err)
	}
	if purged > 0 {
		p.logger.Info("purged aged-out queue items", logging.Int64("count", purged))
	}
	return nil
}

func (p *Processor) dispatchInterval() time.Duration {
	return secondsOrDefault(p.cfg.DispatchIntervalSeconds, 30*time.Second)
}

func (p *Processor) syncInterval() time.Duration {
	return secondsOrDefault(p.cfg.SyncIntervalSeconds, time.Minute)
}

func (p *Processor) cleanupInterval() time.Duration {
	return secondsOrDefault(p.cfg.CleanupIntervalSeconds, time.Hour)
}

func (p *Processor) backoffBase() time.Duration {
	return secondsOrDefault(p.cfg.BackoffBaseSeconds, 30*time.Second)
}

func (p *Processor) backoffCap() time.Duration {
	return secondsOrDefault(p.cfg.BackoffCapSeconds, 30*time.Minute)
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
