// Package oauth implements the authorization-code and refresh-token grants
// against the remote provider using golang.org/x/oauth2.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// Dropbox OAuth endpoints.
const (
	DropboxAuthURL  = "https://www.dropbox.com/oauth2/authorize"
	DropboxTokenURL = "https://api.dropboxapi.com/oauth2/token"
)

// Ensure Provider implements the interface.
var _ driven.AuthProvider = (*Provider)(nil)

// IdentifyFunc resolves the account behind an access token.
type IdentifyFunc func(ctx context.Context, accessToken string) (domain.AccountIdentity, error)

// Config holds the app credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string

	// ExtraAuthParams are appended to the consent URL.
	ExtraAuthParams map[string]string
}

// DropboxConfig returns a Config for a Dropbox app requesting offline access,
// so the token response carries a refresh token.
func DropboxConfig(clientID, clientSecret string) Config {
	return Config{
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		AuthURL:         DropboxAuthURL,
		TokenURL:        DropboxTokenURL,
		ExtraAuthParams: map[string]string{"token_access_type": "offline"},
	}
}

// Provider performs the OAuth grants.
type Provider struct {
	cfg        Config
	identify   IdentifyFunc
	httpClient *http.Client
}

// NewProvider creates a provider. identify may be nil, in which case
// Identity falls back to the account_id returned with the token.
func NewProvider(cfg Config, identify IdentifyFunc) *Provider {
	return &Provider{
		cfg:        cfg,
		identify:   identify,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient overrides the client used for token requests.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.httpClient = c
	return p
}

func (p *Provider) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.cfg.AuthURL,
			TokenURL:  p.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (p *Provider) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL builds the consent URL with an S256 challenge.
func (p *Provider) AuthCodeURL(state, challenge, redirectURI string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	for k, v := range p.cfg.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return p.config(redirectURI).AuthCodeURL(state, opts...)
}

// Exchange trades a code and verifier for tokens.
func (p *Provider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*domain.TokenSet, error) {
	tok, err := p.config(redirectURI).Exchange(p.context(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classify("exchanging authorization code", err)
	}
	return toTokenSet(tok), nil
}

// Refresh obtains a new access token. The refresh token is kept when the
// provider does not rotate it.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", domain.ErrTokenRefreshFailed)
	}
	src := p.config("").TokenSource(p.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify("refreshing token", err)
	}
	return toTokenSet(tok), nil
}

// Identity resolves the account behind accessToken.
func (p *Provider) Identity(ctx context.Context, accessToken string) (domain.AccountIdentity, error) {
	if p.identify == nil {
		return domain.AccountIdentity{}, fmt.Errorf("%w: no identity lookup configured", domain.ErrValidation)
	}
	return p.identify(ctx, accessToken)
}

func toTokenSet(tok *oauth2.Token) *domain.TokenSet {
	set := &domain.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if id, ok := tok.Extra("account_id").(string); ok {
		set.AccountID = id
	}
	return set
}

// classify maps token endpoint failures. A 4xx response means the grant
// was rejected; anything else may succeed later.
func classify(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil &&
		re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
		return fmt.Errorf("%s: %w: %s", op, domain.ErrTokenRefreshFailed, describe(re))
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
}

func describe(re *oauth2.RetrieveError) string {
	switch {
	case re.ErrorCode != "" && re.ErrorDescription != "":
		return re.ErrorCode + ": " + re.ErrorDescription
	case re.ErrorCode != "":
		return re.ErrorCode
	default:
		return fmt.Sprintf("status %d", re.Response.StatusCode)
	}
}
