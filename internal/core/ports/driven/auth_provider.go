package driven

import (
	"context"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// AuthProvider performs the OAuth authorization-code grant with PKCE
// and the refresh-token grant against the remote provider.
type AuthProvider interface {
	// AuthCodeURL builds the consent URL embedding state and challenge.
	AuthCodeURL(state, challenge, redirectURI string) string

	// Exchange trades a code and the original verifier for tokens.
	Exchange(ctx context.Context, code, verifier, redirectURI string) (*domain.TokenSet, error)

	// Refresh obtains a new access token.
	// Rejected refresh tokens return domain.ErrTokenRefreshFailed.
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error)

	// Identity fetches the account identity for an access token.
	Identity(ctx context.Context, accessToken string) (domain.AccountIdentity, error)
}
