package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

type tokenServer struct {
	forms  []url.Values
	status int
	body   map[string]any
}

func (s *tokenServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		s.forms = append(s.forms, r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		if s.status != 0 {
			w.WriteHeader(s.status)
		}
		_ = json.NewEncoder(w).Encode(s.body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server, identify IdentifyFunc) *Provider {
	cfg := DropboxConfig("client", "secret")
	cfg.TokenURL = srv.URL + "/oauth2/token"
	return NewProvider(cfg, identify).WithHTTPClient(srv.Client())
}

func TestProvider_AuthCodeURL(t *testing.T) {
	p := NewProvider(DropboxConfig("client", "secret"), nil)
	raw := p.AuthCodeURL("state-1", "challenge-1", "http://localhost:8080/oauth/callback")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.dropbox.com", u.Host)
	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "offline", q.Get("token_access_type"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/oauth/callback", q.Get("redirect_uri"))
}

func TestProvider_ExchangeSendsVerifier(t *testing.T) {
	ts := &tokenServer{body: map[string]any{
		"access_token":  "access",
		"refresh_token": "refresh",
		"token_type":    "bearer",
		"expires_in":    14400,
		"account_id":    "dbid:abc",
	}}
	p := newTestProvider(ts.start(t), nil)

	set, err := p.Exchange(context.Background(), "the-code", "the-verifier", "http://localhost/cb")
	require.NoError(t, err)

	require.Len(t, ts.forms, 1)
	form := ts.forms[0]
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, "the-verifier", form.Get("code_verifier"))
	assert.Equal(t, "http://localhost/cb", form.Get("redirect_uri"))
	assert.Equal(t, "client", form.Get("client_id"))

	assert.Equal(t, "access", set.AccessToken)
	assert.Equal(t, "refresh", set.RefreshToken)
	assert.Equal(t, "dbid:abc", set.AccountID)
	assert.False(t, set.Expiry.IsZero())
}

func TestProvider_ExchangeRejected(t *testing.T) {
	ts := &tokenServer{status: http.StatusBadRequest, body: map[string]any{
		"error":             "invalid_grant",
		"error_description": "code doesn't exist or has expired",
	}}
	p := newTestProvider(ts.start(t), nil)

	_, err := p.Exchange(context.Background(), "bad", "v", "http://localhost/cb")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestProvider_RefreshKeepsRefreshToken(t *testing.T) {
	ts := &tokenServer{body: map[string]any{
		"access_token": "new-access",
		"token_type":   "bearer",
		"expires_in":   14400,
	}}
	p := newTestProvider(ts.start(t), nil)

	set, err := p.Refresh(context.Background(), "refresh")
	require.NoError(t, err)
	require.Len(t, ts.forms, 1)
	assert.Equal(t, "refresh_token", ts.forms[0].Get("grant_type"))
	assert.Equal(t, "refresh", ts.forms[0].Get("refresh_token"))
	assert.Equal(t, "new-access", set.AccessToken)
	assert.Equal(t, "refresh", set.RefreshToken)
}

func TestProvider_RefreshRejected(t *testing.T) {
	ts := &tokenServer{status: http.StatusBadRequest, body: map[string]any{"error": "invalid_grant"}}
	p := newTestProvider(ts.start(t), nil)

	_, err := p.Refresh(context.Background(), "revoked")
	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
}

func TestProvider_RefreshServerErrorIsTransient(t *testing.T) {
	ts := &tokenServer{status: http.StatusServiceUnavailable, body: map[string]any{}}
	p := newTestProvider(ts.start(t), nil)

	_, err := p.Refresh(context.Background(), "refresh")
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.NotErrorIs(t, err, domain.ErrTokenRefreshFailed)
}

func TestProvider_RefreshWithoutToken(t *testing.T) {
	p := NewProvider(DropboxConfig("c", "s"), nil)
	_, err := p.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
}

func TestProvider_Identity(t *testing.T) {
	p := NewProvider(DropboxConfig("c", "s"), func(_ context.Context, token string) (domain.AccountIdentity, error) {
		return domain.AccountIdentity{AccountID: "id-" + token}, nil
	})
	id, err := p.Identity(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "id-tok", id.AccountID)

	_, err = NewProvider(DropboxConfig("c", "s"), nil).Identity(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
