package main

import (
	"fmt"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/decision"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/downloader"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/events"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/indexer"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/service"
)

// openService builds a one-shot QueueService for CLI commands. It shares the
// daemon's SQLite database; WAL mode keeps concurrent access safe. The
// returned cleanup closes the store.
func openService(ctx *commandContext) (*service.QueueService, func(), error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = store.Close() }

	var client downloader.Client
	if cfg.DownloadClient.BaseURL != "" {
		client, err = downloader.NewQBittorrent(
			cfg.DownloadClient.BaseURL,
			cfg.DownloadClient.Username,
			cfg.DownloadClient.Password,
			cfg.DownloadClient.Category,
		)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	var searcher indexer.Searcher
	if cfg.Indexer.BaseURL != "" {
		raw, err := indexer.New(cfg.Indexer.BaseURL, cfg.Indexer.APIKey)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		searcher = raw
	}

	svc, err := service.New(service.Config{
		Store:       store,
		Bus:         events.NewBus(logging.NewNop()),
		Client:      client,
		Searcher:    searcher,
		Preferences: decision.PreferencesFromConfig(cfg.Scoring),
		MaxAttempts: cfg.Queue.MaxAttempts,
		Logger:      logging.NewNop(),
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("build queue service: %w", err)
	}
	return svc, cleanup, nil
}
