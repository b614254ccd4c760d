// Package messages defines Bubbletea message types for the monitor.
package messages

import (
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
)

// Snapshot is one read of the ledger and the pollers.
type Snapshot struct {
	Stats    []domain.LedgerStats
	Recent   []domain.ProcessedFile
	Accounts []driving.SyncStatus
	TakenAt  time.Time
}

// SnapshotLoaded carries a refreshed snapshot back to the model.
type SnapshotLoaded struct {
	Snapshot Snapshot
	Err      error
}

// Tick triggers a periodic refresh.
type Tick time.Time
