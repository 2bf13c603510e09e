// Package events provides the in-process pub/sub bus linking the queue
// pipeline to notifications, metrics, and the importer. Publishing never
// blocks; a subscriber that falls behind loses events rather than stalling
// the processor.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	QueueItemAdded   Type = "queue_item_added"
	DownloadStarted  Type = "download_started"
	DownloadProgress Type = "download_progress"
	DownloadComplete Type = "download_complete"
	DownloadFailed   Type = "download_failed"
	ImportTriggered  Type = "import_triggered"
)

// Event is one queue lifecycle notification. Progress fields are populated
// only on DownloadProgress.
type Event struct {
	ID        uuid.UUID
	Type      Type
	ItemID    int64
	MovieID   int64
	Title     string
	ClientID  string
	Err       string
	Progress  float64
	SpeedBps  int64
	Timestamp time.Time
}

// New builds an event stamped with a fresh ID and the current time.
func New(eventType Type, itemID, movieID int64, title string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		ItemID:    itemID,
		MovieID:   movieID,
		Title:     title,
		Timestamp: time.Now(),
	}
}
