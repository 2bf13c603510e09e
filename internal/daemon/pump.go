package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/events"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/metrics"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/notifications"
)

// notificationPump fans lifecycle events into the notification service and
// refreshes the bus delivery counters.
type notificationPump struct {
	bus      *events.Bus
	notifier notifications.Service
	registry *metrics.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  func()
	done    chan struct{}
}

func newNotificationPump(bus *events.Bus, notifier notifications.Service, registry *metrics.Registry, logger *slog.Logger) *notificationPump {
	return &notificationPump{
		bus:      bus,
		notifier: notifier,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "notify-pump"),
	}
}

func (p *notificationPump) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ch, unsubscribe := p.bus.Subscribe()
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = func() {
		cancel()
		unsubscribe()
	}
	p.done = done
	p.running = true

	go func() {
		defer close(done)
		var lastPublished, lastDropped uint64
		for {
			select {
			case <-runCtx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				p.handle(runCtx, event)
				if published := p.bus.Published(); published != lastPublished {
					p.registry.EventsPublished.Add(float64(published - lastPublished))
					lastPublished = published
				}
				if dropped := p.bus.Dropped(); dropped != lastDropped {
					p.registry.EventsDropped.Add(float64(dropped - lastDropped))
					lastDropped = dropped
				}
			}
		}
	}()
}

func (p *notificationPump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *notificationPump) handle(ctx context.Context, event events.Event) {
	var err error
	switch event.Type {
	case events.QueueItemAdded:
		err = p.notifier.NotifyGrabbed(ctx, event.Title)
	case events.DownloadComplete:
		err = p.notifier.NotifyDownloadComplete(ctx, event.Title)
	case events.DownloadFailed:
		err = p.notifier.NotifyDownloadFailed(ctx, event.Title, event.Err)
	default:
		return
	}
	if err != nil {
		p.logger.Warn("notification delivery failed",
			logging.String(logging.FieldEventType, string(event.Type)),
			logging.Error(err))
	}
}
