package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// VocabularyStore persists learned tag names so they survive restarts.
type VocabularyStore interface {
	// List returns every stored entry for a scope.
	List(ctx context.Context, scope string) ([]domain.VocabularyEntry, error)

	// Add stores an entry. Adding an existing (scope, name) is a no-op.
	Add(ctx context.Context, entry domain.VocabularyEntry) error
}
