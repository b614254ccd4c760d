package driving

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Authorizer drives interactive authorization attempts.
type Authorizer interface {
	// Begin starts an attempt and returns it with the consent URL.
	Begin(ctx context.Context) (*domain.AuthAttempt, string, error)

	// Complete finishes the attempt that issued stateToken.
	Complete(ctx context.Context, stateToken, code string) (*domain.AccountCredential, error)

	// Cancel aborts a pending attempt.
	Cancel(stateToken, reason string)

	// Attempt returns a snapshot of an attempt by its ID.
	Attempt(id string) (*domain.AuthAttempt, error)

	// Wait blocks until the attempt reaches a terminal state.
	Wait(ctx context.Context, id string) (*domain.AuthAttempt, error)
}
