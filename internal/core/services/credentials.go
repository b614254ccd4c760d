package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// Ensure CredentialsService implements the interface.
var _ driving.CredentialsService = (*CredentialsService)(nil)

// CredentialsService manages authorized account credentials and refreshes
// their access tokens.
type CredentialsService struct {
	store    driven.CredentialStore
	provider driven.AuthProvider
	now      func() time.Time

	// refreshMu serialises refreshes so two callers never spend the same
	// refresh token.
	refreshMu sync.Mutex
}

// NewCredentialsService creates a new credentials service.
// provider may be nil when refresh is not needed (e.g. listing accounts).
func NewCredentialsService(store driven.CredentialStore, provider driven.AuthProvider) *CredentialsService {
	return &CredentialsService{
		store:    store,
		provider: provider,
		now:      time.Now,
	}
}

// List returns all authorized accounts.
func (s *CredentialsService) List(ctx context.Context) ([]domain.AccountCredential, error) {
	return s.store.List(ctx)
}

// Get retrieves one account's credential.
func (s *CredentialsService) Get(ctx context.Context, accountID string) (*domain.AccountCredential, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", domain.ErrValidation)
	}
	return s.store.Get(ctx, accountID)
}

// Remove deletes an account's credential.
func (s *CredentialsService) Remove(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: account id is required", domain.ErrValidation)
	}
	return s.store.Remove(ctx, accountID)
}

// Refresh exchanges the stored refresh token for a new access token and
// updates the credential in place.
func (s *CredentialsService) Refresh(ctx context.Context, accountID string) (*domain.AccountCredential, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("%w: no auth provider configured", domain.ErrTokenRefreshFailed)
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cred, err := s.store.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading credential: %w", domain.ErrStorageUnavailable, err)
	}
	if !cred.HasRefreshToken() {
		return nil, fmt.Errorf("%w: account %s has no refresh token", domain.ErrTokenRefreshFailed, accountID)
	}

	tokens, err := s.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %w", domain.ErrTokenRefreshFailed, accountID, err)
	}

	cred.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		cred.RefreshToken = tokens.RefreshToken
	}
	cred.Expiry = tokens.Expiry
	cred.RefreshedAt = s.now()

	if err := s.store.Put(ctx, *cred); err != nil {
		return nil, fmt.Errorf("%w: saving refreshed credential: %w", domain.ErrStorageUnavailable, err)
	}
	logger.Debug("refreshed access token for account %s", accountID)
	return cred, nil
}
