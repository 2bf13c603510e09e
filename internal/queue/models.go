package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusRetrying    Status = "retrying"
	StatusRemoved     Status = "removed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusDownloading,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusRetrying,
	StatusRemoved,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions enumerates every legal status edge. A transition not listed
// here is rejected by the store with ErrInvalidTransition.
var transitions = map[Status][]Status{
	StatusQueued:      {StatusDownloading, StatusRetrying, StatusFailed, StatusRemoved},
	StatusRetrying:    {StatusDownloading, StatusRetrying, StatusFailed, StatusRemoved},
	StatusDownloading: {StatusPaused, StatusCompleted, StatusFailed, StatusRetrying, StatusRemoved},
	StatusPaused:      {StatusDownloading, StatusRemoved},
	StatusCompleted:   {StatusRemoved},
	StatusFailed:      {StatusRetrying, StatusRemoved},
	StatusRemoved:     nil,
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends the item's active lifecycle.
// Failed is terminal for the processor but may still be retried by a user.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRemoved:
		return true
	default:
		return false
	}
}

// IsDispatchable reports whether the processor's dispatch step may pick the item up.
func (s Status) IsDispatchable() bool {
	return s == StatusQueued || s == StatusRetrying
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Priority orders dispatch within the processor's pick step. Higher values
// dispatch first; creation time breaks ties within a tier.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 10
	PriorityHigh     Priority = 20
	PriorityVeryHigh Priority = 30
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very_high"
	default:
		return "normal"
	}
}

// ParsePriority converts a string into a known Priority, defaulting to normal.
func ParsePriority(value string) Priority {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "very_high", "veryhigh":
		return PriorityVeryHigh
	default:
		return PriorityNormal
	}
}

// Item represents one tracked acquisition persisted in SQLite.
type Item struct {
	ID          int64
	MovieID     int64
	ReleaseID   string
	Title       string
	DownloadURL string

	// ClientID is the handle assigned by the download client. Empty until the
	// first successful dispatch; a failed item keeps the stale handle from its
	// last attempt.
	ClientID string

	Status   Status
	Priority Priority

	// Progress fields are advisory. They are refreshed by the sync step and
	// never drive state transitions.
	TotalBytes      int64
	DownloadedBytes int64
	SpeedBps        int64
	ETASeconds      int64

	AttemptCount int
	MaxAttempts  int

	// NotBefore delays dispatch eligibility after a transient failure.
	NotBefore *time.Time

	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttemptsExhausted reports whether the item has used up its retry budget.
func (i Item) AttemptsExhausted() bool {
	return i.AttemptCount >= i.MaxAttempts
}

// ResetProgress clears the advisory progress fields for a fresh attempt.
func (i *Item) ResetProgress() {
	i.TotalBytes = 0
	i.DownloadedBytes = 0
	i.SpeedBps = 0
	i.ETASeconds = 0
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total       int
	Queued      int
	Downloading int
	Paused      int
	Retrying    int
	Completed   int
	Failed      int
}
