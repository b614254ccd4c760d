package dropbox

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.RemoteStoreFactory = (*Factory)(nil)

// FactoryConfig configures stores opened by a Factory.
type FactoryConfig struct {
	// Root is the folder ListSince walks. Empty means the app folder root.
	Root string

	// RateLimit is the per-account request budget.
	RateLimit RateLimitConfig

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Factory opens a Store per credential. Rate limiters are shared per
// account so refreshed tokens keep the same budget.
type Factory struct {
	cfg        FactoryConfig
	httpClient *http.Client

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewFactory creates a factory.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Factory{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiters:   make(map[string]*RateLimiter),
	}
}

// Open builds a Store for cred's access token.
func (f *Factory) Open(_ context.Context, cred domain.AccountCredential) (driven.RemoteStore, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: account %s has no access token", domain.ErrAuthExpired, cred.AccountID)
	}
	cfg := dropbox.Config{
		Token:    cred.AccessToken,
		LogLevel: dropbox.LogOff,
		Client:   f.httpClient,
	}
	return newStore(files.New(cfg), users.New(cfg), f.limiter(cred.AccountID), f.cfg.Root), nil
}

func (f *Factory) limiter(accountID string) *RateLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[accountID]
	if !ok {
		l = NewRateLimiter(f.cfg.RateLimit)
		f.limiters[accountID] = l
	}
	return l
}

// Identify returns the identity behind an access token. It backs the
// OAuth provider's identity lookup.
func (f *Factory) Identify(ctx context.Context, accessToken string) (domain.AccountIdentity, error) {
	store, err := f.Open(ctx, domain.AccountCredential{AccessToken: accessToken})
	if err != nil {
		return domain.AccountIdentity{}, err
	}
	return store.CurrentAccount(ctx)
}
