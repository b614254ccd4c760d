package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// CredentialStore persists one credential per remote account.
// Writes are atomic and durable before they return.
type CredentialStore interface {
	// Put creates or replaces the credential for cred.AccountID.
	// Returns domain.ErrValidation if the account ID is empty.
	Put(ctx context.Context, cred domain.AccountCredential) error

	// Get retrieves the credential for an account.
	// Returns domain.ErrNotFound if none exists.
	Get(ctx context.Context, accountID string) (*domain.AccountCredential, error)

	// List returns all stored credentials.
	List(ctx context.Context) ([]domain.AccountCredential, error)

	// Remove deletes an account's credential. Absent accounts are not an error.
	Remove(ctx context.Context, accountID string) error
}
