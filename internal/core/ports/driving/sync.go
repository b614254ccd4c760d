package driving

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Synchronizer polls authorized accounts for new remote items.
type Synchronizer interface {
	// Accounts returns the IDs of every authorized account.
	Accounts(ctx context.Context) ([]string, error)

	// PollAccount runs one poll cycle for a single account and sends a
	// batch summary when it handled at least one item.
	PollAccount(ctx context.Context, accountID string) domain.AccountSyncResult

	// PollAll runs one cycle for every stored account concurrently.
	// The returned error is non-nil only when durable storage failed.
	PollAll(ctx context.Context) ([]domain.AccountSyncResult, error)

	// Status returns the live state of an account's poller.
	Status(accountID string) SyncStatus
}

// SyncStatus represents the current state of an account's poller.
type SyncStatus struct {
	AccountID string

	// Running indicates if a poll is currently in progress.
	Running bool

	// LastResult is the outcome of the last completed poll, if any.
	LastResult *domain.AccountSyncResult
}
