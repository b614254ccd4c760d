package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// cursorStore implements driven.CursorStore.
type cursorStore struct {
	store *Store
}

var _ driven.CursorStore = (*cursorStore)(nil)

// Save stores or replaces an account's cursor.
func (s *cursorStore) Save(ctx context.Context, cursor domain.SyncCursor) error {
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now()
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (account_id, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at
	`, cursor.AccountID, cursor.Cursor, formatTime(cursor.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// Get returns an account's cursor, or domain.ErrNotFound.
func (s *cursorStore) Get(ctx context.Context, accountID string) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	var updated string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT account_id, cursor, updated_at FROM sync_cursors WHERE account_id = ?", accountID,
	).Scan(&c.AccountID, &c.Cursor, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading cursor: %w", err)
	}
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// Delete discards an account's cursor.
func (s *cursorStore) Delete(ctx context.Context, accountID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM sync_cursors WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("deleting cursor: %w", err)
	}
	return nil
}
