package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// CursorStore persists each account's sync cursor.
type CursorStore interface {
	// Save stores or replaces the cursor for an account.
	Save(ctx context.Context, cursor domain.SyncCursor) error

	// Get retrieves the cursor for an account.
	// Returns domain.ErrNotFound if the account has never synced.
	Get(ctx context.Context, accountID string) (*domain.SyncCursor, error)

	// Delete discards the cursor for an account.
	Delete(ctx context.Context, accountID string) error
}
