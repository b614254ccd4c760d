package driving

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// TokenRefresher refreshes a stored account credential.
type TokenRefresher interface {
	Refresh(ctx context.Context, accountID string) (*domain.AccountCredential, error)
}

// CredentialsService manages authorized account credentials.
type CredentialsService interface {
	TokenRefresher

	// List returns all authorized accounts.
	List(ctx context.Context) ([]domain.AccountCredential, error)

	// Get retrieves one account's credential.
	Get(ctx context.Context, accountID string) (*domain.AccountCredential, error)

	// Remove revokes an account locally. The poller skips it from the next cycle.
	Remove(ctx context.Context, accountID string) error
}
