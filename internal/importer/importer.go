// Package importer bridges completed downloads into library import. The
// current implementation only announces the hand-off; the media organizer
// consuming ImportTriggered lives outside this daemon.
package importer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/events"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
)

// Importer listens for completed downloads and emits ImportTriggered so
// downstream tooling can pick the files up.
type Importer struct {
	bus    *events.Bus
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  func()
	done    chan struct{}
}

// New builds an Importer on the shared bus.
func New(bus *events.Bus, logger *slog.Logger) *Importer {
	return &Importer{
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "importer"),
	}
}

// Start begins consuming completion events.
func (i *Importer) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return nil
	}

	ch, unsubscribe := i.bus.Subscribe()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	i.cancel = func() {
		cancel()
		unsubscribe()
	}
	i.done = done
	i.running = true

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				if event.Type != events.DownloadComplete {
					continue
				}
				i.trigger(event)
			}
		}
	}()
	return nil
}

// Stop halts event consumption and waits for the worker to exit.
func (i *Importer) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	cancel := i.cancel
	done := i.done
	i.running = false
	i.cancel = nil
	i.done = nil
	i.mu.Unlock()

	cancel()
	<-done
}

func (i *Importer) trigger(source events.Event) {
	i.logger.Info("import triggered",
		logging.Int64(logging.FieldItemID, source.ItemID),
		logging.Int64(logging.FieldMovieID, source.MovieID),
		logging.String("title", source.Title))

	event := events.New(events.ImportTriggered, source.ItemID, source.MovieID, source.Title)
	event.ClientID = source.ClientID
	i.bus.Publish(event)
}
