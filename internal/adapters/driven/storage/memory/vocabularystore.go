package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure VocabularyStore implements the interface.
var _ driven.VocabularyStore = (*VocabularyStore)(nil)

// VocabularyStore is an in-memory implementation of driven.VocabularyStore.
type VocabularyStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]domain.VocabularyEntry
}

// NewVocabularyStore creates a new in-memory vocabulary store.
func NewVocabularyStore() *VocabularyStore {
	return &VocabularyStore{
		entries: make(map[string]map[string]domain.VocabularyEntry),
	}
}

// List returns every entry for a scope.
func (s *VocabularyStore) List(_ context.Context, scope string) ([]domain.VocabularyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.VocabularyEntry, 0, len(s.entries[scope]))
	for _, e := range s.entries[scope] {
		out = append(out, e)
	}
	return out, nil
}

// Add stores an entry, ignoring duplicates.
func (s *VocabularyStore) Add(_ context.Context, entry domain.VocabularyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.entries[entry.Scope]
	if !ok {
		scope = make(map[string]domain.VocabularyEntry)
		s.entries[entry.Scope] = scope
	}
	if _, exists := scope[entry.Name]; !exists {
		scope[entry.Name] = entry
	}
	return nil
}
