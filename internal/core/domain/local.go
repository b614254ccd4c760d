package domain

// LocalEventKind says which watched folder an event came from.
type LocalEventKind string

// Local event kinds.
const (
	// LocalInbox is a new or rewritten image in the inbox.
	LocalInbox LocalEventKind = "inbox"

	// LocalOutbox is a file created or renamed in the outbox.
	LocalOutbox LocalEventKind = "outbox"
)

// LocalEvent is a settled change in a watched local folder.
type LocalEvent struct {
	Kind LocalEventKind
	Path string
}
