package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure CredentialStore implements the interface.
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore is an in-memory implementation of driven.CredentialStore.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]domain.AccountCredential
}

// NewCredentialStore creates a new in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds: make(map[string]domain.AccountCredential),
	}
}

// Put creates or replaces a credential.
func (s *CredentialStore) Put(_ context.Context, cred domain.AccountCredential) error {
	if cred.AccountID == "" {
		return fmt.Errorf("%w: account id is required", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.AccountID] = cred
	return nil
}

// Get retrieves a credential by account ID.
func (s *CredentialStore) Get(_ context.Context, accountID string) (*domain.AccountCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// List returns all credentials ordered by account ID.
func (s *CredentialStore) List(_ context.Context) ([]domain.AccountCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AccountCredential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// Remove deletes a credential. Missing accounts are ignored.
func (s *CredentialStore) Remove(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, accountID)
	return nil
}
