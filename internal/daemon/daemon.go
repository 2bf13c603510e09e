package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/config"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/decision"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/downloader"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/events"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/importer"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/indexer"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/metrics"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/notifications"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/processor"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/service"
)

// Daemon wires the full pipeline together and enforces single-instance
// execution through a file lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	bus     *events.Bus
	metrics *metrics.Registry

	queueService *service.QueueService
	processor    *processor.Processor
	importer     *importer.Importer
	notifier     notifications.Service
	notifyPump   *notificationPump
	health       *healthServer

	indexerClient    *indexer.Resilient
	downloaderClient *downloader.Resilient

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies. The store must
// already be open; the daemon takes ownership and closes it on Close.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	registry := metrics.New()
	bus := events.NewBus(logger)

	searchGuard := resilience.NewClient(
		"indexer",
		cfg.Indexer.RateLimit,
		cfg.Indexer.Breaker,
		time.Duration(cfg.Indexer.TimeoutSeconds)*time.Second,
		resilience.WithObserver(registry),
		resilience.WithLogger(logger),
	)
	transferGuard := resilience.NewClient(
		"download_client",
		cfg.DownloadClient.RateLimit,
		cfg.DownloadClient.Breaker,
		time.Duration(cfg.DownloadClient.TimeoutSeconds)*time.Second,
		resilience.WithObserver(registry),
		resilience.WithLogger(logger),
	)

	var searcher *indexer.Resilient
	if cfg.Indexer.BaseURL != "" {
		raw, err := indexer.New(cfg.Indexer.BaseURL, cfg.Indexer.APIKey)
		if err != nil {
			return nil, fmt.Errorf("build indexer client: %w", err)
		}
		searcher = indexer.NewResilient(raw, searchGuard)
	}

	rawClient, err := downloader.NewQBittorrent(
		cfg.DownloadClient.BaseURL,
		cfg.DownloadClient.Username,
		cfg.DownloadClient.Password,
		cfg.DownloadClient.Category,
	)
	if err != nil {
		return nil, fmt.Errorf("build download client: %w", err)
	}
	client := downloader.NewResilient(rawClient, transferGuard)

	svcCfg := service.Config{
		Store:       store,
		Bus:         bus,
		Client:      client,
		Preferences: decision.PreferencesFromConfig(cfg.Scoring),
		MaxAttempts: cfg.Queue.MaxAttempts,
		Logger:      logger,
	}
	if searcher != nil {
		svcCfg.Searcher = searcher
	}
	queueService, err := service.New(svcCfg)
	if err != nil {
		return nil, fmt.Errorf("build queue service: %w", err)
	}

	proc, err := processor.New(cfg.Queue, store, client, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("build processor: %w", err)
	}
	proc.OnPassComplete(func(loop string) {
		switch loop {
		case "dispatch":
			registry.DispatchTotal.Inc()
		case "sync":
			registry.SyncTotal.Inc()
		}
	})

	notifier := notifications.NewService(cfg)
	lockPath := filepath.Join(cfg.Paths.DataDir, "fetcharrd.lock")

	d := &Daemon{
		cfg:              cfg,
		logger:           logging.NewComponentLogger(logger, "daemon"),
		store:            store,
		bus:              bus,
		metrics:          registry,
		queueService:     queueService,
		processor:        proc,
		importer:         importer.New(bus, logger),
		notifier:         notifier,
		indexerClient:    searcher,
		downloaderClient: client,
		lockPath:         lockPath,
		lock:             flock.New(lockPath),
	}
	d.notifyPump = newNotificationPump(bus, notifier, registry, logger)
	d.health = newHealthServer(cfg.Paths.Bind, d, logger)
	return d, nil
}

// QueueService exposes the shared service for the CLI surfaces.
func (d *Daemon) QueueService() *service.QueueService {
	return d.queueService
}

// Start acquires the instance lock, recovers interrupted dispatches, and
// launches the background loops and the health endpoint.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fetcharr daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	reset, err := d.store.ResetOrphanedDispatch(runCtx)
	if err != nil {
		d.releaseLock()
		cancel()
		return fmt.Errorf("recover interrupted dispatches: %w", err)
	}
	if reset > 0 {
		d.logger.Info("recovered interrupted dispatches", logging.Int64("count", reset))
	}

	if err := d.processor.Start(runCtx); err != nil {
		d.releaseLock()
		cancel()
		return fmt.Errorf("start processor: %w", err)
	}
	if err := d.importer.Start(runCtx); err != nil {
		d.processor.Stop()
		d.releaseLock()
		cancel()
		return fmt.Errorf("start importer: %w", err)
	}
	d.notifyPump.Start(runCtx)
	if err := d.health.Start(); err != nil {
		d.importer.Stop()
		d.processor.Stop()
		d.notifyPump.Stop()
		d.releaseLock()
		cancel()
		return fmt.Errorf("start health server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("fetcharr daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.Bind),
		logging.String("db", d.store.Path()))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.health.Stop()
	d.processor.Stop()
	d.importer.Stop()
	d.notifyPump.Stop()
	d.bus.Close()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("fetcharr daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
