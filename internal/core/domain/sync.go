package domain

import "time"

// SyncCursor is an account's position in the remote change stream.
type SyncCursor struct {
	AccountID string
	Cursor    string
	UpdatedAt time.Time
}

// RemoteItem is one entry returned by a delta listing.
type RemoteItem struct {
	// ID is the provider's stable file identifier.
	ID string

	// Path is the display path, e.g. "/Inbox/scan.jpg".
	Path string

	// Name is the final path segment.
	Name string

	Size       int64
	ModifiedAt time.Time

	// Deleted is true for tombstones.
	Deleted bool

	// Folder is true for folder entries.
	Folder bool
}

// ListPage is one page of a delta listing.
type ListPage struct {
	Items   []RemoteItem
	Cursor  string
	HasMore bool
}

// AccountSyncResult summarises one account's poll cycle.
type AccountSyncResult struct {
	AccountID  string
	Processed  int
	Skipped    int
	Failed     int
	Learned    int
	FullResync bool
	Err        error
	StartedAt  time.Time
	EndedAt    time.Time
}

// SourceRef identifies where a piece of content came from.
type SourceRef struct {
	// ID is the provider identifier or the absolute local path.
	ID string

	// Path is the remote display path or the local path.
	Path string

	// Name is the original file name.
	Name string
}
