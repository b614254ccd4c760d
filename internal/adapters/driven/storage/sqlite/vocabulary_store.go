package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// vocabularyStore implements driven.VocabularyStore.
type vocabularyStore struct {
	store *Store
}

var _ driven.VocabularyStore = (*vocabularyStore)(nil)

// List returns a scope's entries in the order they were first seen.
func (s *vocabularyStore) List(ctx context.Context, scope string) ([]domain.VocabularyEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT scope, name, origin, first_seen FROM vocabulary
		WHERE scope = ? ORDER BY first_seen, name
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("querying vocabulary: %w", err)
	}
	defer rows.Close()

	var entries []domain.VocabularyEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.VocabularyEntry
		var origin, firstSeen string
		if err := rows.Scan(&e.Scope, &e.Name, &origin, &firstSeen); err != nil {
			return nil, fmt.Errorf("scanning vocabulary entry: %w", err)
		}
		e.Origin = domain.TagOrigin(origin)
		e.FirstSeen = parseTime(firstSeen)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vocabulary: %w", err)
	}
	return entries, nil
}

// Add stores an entry. An existing entry keeps its origin and first-seen time.
func (s *vocabularyStore) Add(ctx context.Context, entry domain.VocabularyEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("%w: tag name is required", domain.ErrValidation)
	}
	if entry.FirstSeen.IsZero() {
		entry.FirstSeen = time.Now()
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO vocabulary (scope, name, origin, first_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, name) DO NOTHING
	`, entry.Scope, entry.Name, string(entry.Origin), formatTime(entry.FirstSeen))
	if err != nil {
		return fmt.Errorf("adding vocabulary entry: %w", err)
	}
	return nil
}
