package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
)

const defaultBuffer = 64

// Bus fans events out to subscribers over buffered channels. Publish is
// non-blocking: when a subscriber's buffer is full the event is dropped for
// that subscriber and counted.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus builds an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. Cancel closes the channel; the subscriber must stop receiving
// after calling it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	return b.SubscribeBuffer(defaultBuffer)
}

// SubscribeBuffer registers a subscriber with an explicit buffer size.
func (b *Bus) SubscribeBuffer(size int) (<-chan Event, func()) {
	if size < 1 {
		size = 1
	}
	ch := make(chan Event, size)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	b.published.Add(1)
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped for slow subscriber",
				logging.String(logging.FieldEventType, string(event.Type)),
				logging.Int64(logging.FieldItemID, event.ItemID))
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Published returns the number of events accepted by Publish.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Dropped returns the number of per-subscriber deliveries that were dropped.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
