package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driving"
	"github.com/custodia-labs/ocrbox/internal/logger"
)

// Ensure AuthorizationService implements the interface.
var _ driving.Authorizer = (*AuthorizationService)(nil)

// DefaultAttemptTTL bounds how long an attempt waits for its callback.
const DefaultAttemptTTL = 10 * time.Minute

// AuthorizationService runs PKCE authorization attempts. Each attempt owns its
// verifier and state token, so several users can authorize at once.
type AuthorizationService struct {
	provider    driven.AuthProvider
	credentials driven.CredentialStore
	provisioner driven.Provisioner
	allowlist   domain.Allowlist
	redirectURI string
	ttl         time.Duration
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]*domain.AuthAttempt
	byState  map[string]string
	done     map[string]chan struct{}
}

// AuthorizationOption configures an AuthorizationService.
type AuthorizationOption func(*AuthorizationService)

// WithProvisioner sets the collaborator called for first-time accounts.
func WithProvisioner(p driven.Provisioner) AuthorizationOption {
	return func(s *AuthorizationService) { s.provisioner = p }
}

// WithAttemptTTL overrides DefaultAttemptTTL.
func WithAttemptTTL(ttl time.Duration) AuthorizationOption {
	return func(s *AuthorizationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithAuthClock overrides the clock, for tests.
func WithAuthClock(now func() time.Time) AuthorizationOption {
	return func(s *AuthorizationService) { s.now = now }
}

// NewAuthorizationService creates an authorization service.
func NewAuthorizationService(
	provider driven.AuthProvider,
	credentials driven.CredentialStore,
	allowlist domain.Allowlist,
	redirectURI string,
	opts ...AuthorizationOption,
) *AuthorizationService {
	s := &AuthorizationService{
		provider:    provider,
		credentials: credentials,
		allowlist:   allowlist,
		redirectURI: redirectURI,
		ttl:         DefaultAttemptTTL,
		now:         time.Now,
		attempts:    make(map[string]*domain.AuthAttempt),
		byState:     make(map[string]string),
		done:        make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin starts an attempt: it generates the verifier, challenge and state
// token and returns the consent URL.
func (s *AuthorizationService) Begin(_ context.Context) (*domain.AuthAttempt, string, error) {
	verifier, err := newVerifier()
	if err != nil {
		return nil, "", fmt.Errorf("generating code verifier: %w", err)
	}
	state, err := newStateToken()
	if err != nil {
		return nil, "", fmt.Errorf("generating state: %w", err)
	}

	now := s.now()
	attempt := domain.AuthAttempt{
		ID:          uuid.New().String(),
		State:       domain.AttemptStarted,
		Verifier:    verifier,
		Challenge:   challengeFor(verifier),
		StateToken:  state,
		RedirectURI: s.redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	authURL := s.provider.AuthCodeURL(attempt.StateToken, attempt.Challenge, attempt.RedirectURI)
	if err := attempt.Advance(domain.AttemptChallengeIssued); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.attempts[attempt.ID] = &attempt
	s.byState[attempt.StateToken] = attempt.ID
	s.done[attempt.ID] = make(chan struct{})
	s.mu.Unlock()

	logger.Debug("authorization attempt %s issued", attempt.ID)
	snapshot := attempt
	return &snapshot, authURL, nil
}

// Complete handles the provider callback for the attempt that issued stateToken.
// The state token is single use. Any failure aborts the attempt without
// persisting a credential.
func (s *AuthorizationService) Complete(ctx context.Context, stateToken, code string) (*domain.AccountCredential, error) {
	attempt, err := s.claim(stateToken)
	if err != nil {
		return nil, err
	}

	if attempt.Expired(s.now()) {
		s.abort(attempt, "attempt expired")
		return nil, domain.ErrAttemptExpired
	}
	if err := attempt.Advance(domain.AttemptCallbackReceived); err != nil {
		s.abort(attempt, err.Error())
		return nil, err
	}
	s.store(attempt)

	if code == "" {
		s.abort(attempt, "missing authorization code")
		return nil, fmt.Errorf("%w: missing authorization code", domain.ErrValidation)
	}

	tokens, err := s.provider.Exchange(ctx, code, attempt.Verifier, attempt.RedirectURI)
	if err != nil {
		s.abort(attempt, "code exchange failed")
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	identity, err := s.provider.Identity(ctx, tokens.AccessToken)
	if err != nil {
		s.abort(attempt, "identity lookup failed")
		return nil, fmt.Errorf("fetching account identity: %w", err)
	}
	if identity.AccountID == "" {
		identity.AccountID = tokens.AccountID
	}
	if identity.AccountID == "" {
		s.abort(attempt, "provider returned no account id")
		return nil, fmt.Errorf("%w: provider returned no account id", domain.ErrValidation)
	}

	if !s.allowlist.Allows(identity) {
		logger.Warn("authorization rejected for account %s (%s): not on allowlist", identity.AccountID, identity.Email)
		s.abort(attempt, "account not allowed")
		return nil, fmt.Errorf("%w: %s", domain.ErrNotAllowed, identity.Email)
	}
	attempt.AccountID = identity.AccountID
	attempt.Email = identity.Email
	if err := attempt.Advance(domain.AttemptAccountValidated); err != nil {
		s.abort(attempt, err.Error())
		return nil, err
	}
	s.store(attempt)

	cred, firstTime, err := s.persist(ctx, identity, tokens)
	if err != nil {
		s.abort(attempt, "credential store failed")
		return nil, err
	}

	if err := attempt.Advance(domain.AttemptCompleted); err != nil {
		return nil, err
	}
	s.finish(attempt)
	logger.Info("authorized account %s (%s)", cred.AccountID, cred.Email)

	if firstTime && s.provisioner != nil {
		if err := s.provisioner.Provision(ctx, *cred); err != nil {
			logger.Warn("provisioning account %s: %v", cred.AccountID, err)
		}
	}
	return cred, nil
}

func (s *AuthorizationService) persist(
	ctx context.Context,
	identity domain.AccountIdentity,
	tokens *domain.TokenSet,
) (*domain.AccountCredential, bool, error) {
	now := s.now()
	cred := domain.AccountCredential{
		AccountID:    identity.AccountID,
		Email:        identity.Email,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.Expiry,
		AuthorizedAt: now,
	}

	existing, err := s.credentials.Get(ctx, identity.AccountID)
	firstTime := errors.Is(err, domain.ErrNotFound)
	switch {
	case firstTime:
	case err != nil:
		return nil, false, fmt.Errorf("%w: reading credential: %w", domain.ErrStorageUnavailable, err)
	case cred.RefreshToken == "":
		cred.RefreshToken = existing.RefreshToken
	}

	if err := s.credentials.Put(ctx, cred); err != nil {
		return nil, false, fmt.Errorf("%w: saving credential: %w", domain.ErrStorageUnavailable, err)
	}
	return &cred, firstTime, nil
}

// Cancel aborts the pending attempt that issued stateToken.
func (s *AuthorizationService) Cancel(stateToken, reason string) {
	attempt, err := s.claim(stateToken)
	if err != nil {
		return
	}
	s.abort(attempt, reason)
}

// Attempt returns a snapshot of an attempt.
func (s *AuthorizationService) Attempt(id string) (*domain.AuthAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	snapshot := *a
	return &snapshot, nil
}

// Wait blocks until the attempt is completed or aborted and returns its final
// state, immediately if it already finished. An attempt still pending when
// ctx ends is aborted.
func (s *AuthorizationService) Wait(ctx context.Context, id string) (*domain.AuthAttempt, error) {
	s.mu.Lock()
	done, ok := s.done[id]
	s.mu.Unlock()
	if !ok {
		// Finished before Wait was called, or unknown.
		a, err := s.Attempt(id)
		if err != nil {
			return nil, err
		}
		if !a.State.IsTerminal() {
			return nil, domain.ErrAttemptNotFound
		}
		return a, nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		if a, err := s.Attempt(id); err == nil && !a.State.IsTerminal() {
			s.Cancel(a.StateToken, "cancelled")
		}
	}
	return s.Attempt(id)
}

// claim removes the state token so it cannot be replayed and returns a
// private copy of its attempt.
func (s *AuthorizationService) claim(stateToken string) (*domain.AuthAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byState[stateToken]
	if !ok || stateToken == "" {
		return nil, domain.ErrStateMismatch
	}
	delete(s.byState, stateToken)

	a := s.attempts[id]
	if a == nil || a.State.IsTerminal() {
		return nil, domain.ErrStateMismatch
	}
	claimed := *a
	return &claimed, nil
}

func (s *AuthorizationService) store(a *domain.AuthAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *a
	s.attempts[a.ID] = &snapshot
}

func (s *AuthorizationService) abort(a *domain.AuthAttempt, reason string) {
	a.Abort(reason)
	logger.Debug("authorization attempt %s aborted: %s", a.ID, reason)
	s.finish(a)
}

func (s *AuthorizationService) finish(a *domain.AuthAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *a
	s.attempts[a.ID] = &snapshot
	if ch, ok := s.done[a.ID]; ok {
		close(ch)
		delete(s.done, a.ID)
	}
}

// pruneLocked aborts expired pending attempts and forgets terminal ones
// older than the TTL.
func (s *AuthorizationService) pruneLocked(now time.Time) {
	for id, a := range s.attempts {
		if !a.State.IsTerminal() && a.Expired(now) {
			a.Abort("attempt expired")
			delete(s.byState, a.StateToken)
			if ch, ok := s.done[id]; ok {
				close(ch)
				delete(s.done, id)
			}
			continue
		}
		if a.State.IsTerminal() && now.Sub(a.CreatedAt) > 2*s.ttl {
			delete(s.attempts, id)
		}
	}
}
