package domain

import "time"

// EventKind classifies a notification event.
type EventKind string

// Notification event kinds.
const (
	EventProcessed    EventKind = "processed"
	EventFailed       EventKind = "failed"
	EventBatchSummary EventKind = "batch_summary"
)

// Event is a best-effort notification payload.
type Event struct {
	Kind       EventKind
	AccountID  string
	SourceName string
	OutputPath string
	Tags       []string
	Excerpt    string
	Error      string
	Processed  int
	Failed     int
	Timestamp  time.Time
}
