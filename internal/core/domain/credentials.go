package domain

import (
	"strings"
	"time"
)

// AccountCredential stores the tokens for one authorized remote account.
// There is at most one credential per AccountID.
type AccountCredential struct {
	// AccountID is the provider's stable account identifier.
	AccountID string `json:"account_id"`

	// Email is the account email. Empty until the account is validated.
	Email string `json:"email,omitempty"`

	// AccessToken is the bearer token for API access.
	AccessToken string `json:"access_token"`

	// RefreshToken is used to obtain new access tokens.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Expiry is when the access token expires. Zero if unknown.
	Expiry time.Time `json:"expiry,omitempty"`

	// AuthorizedAt is when the grant completed.
	AuthorizedAt time.Time `json:"authorized_at"`

	// RefreshedAt is when the access token was last refreshed.
	RefreshedAt time.Time `json:"refreshed_at,omitempty"`
}

// IsExpired returns true if the access token has expired.
func (c *AccountCredential) IsExpired() bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().After(c.Expiry)
}

// HasRefreshToken returns true if a refresh token is available.
func (c *AccountCredential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// NeedsRefresh returns true if the token is expired and can be refreshed.
func (c *AccountCredential) NeedsRefresh() bool {
	return c.IsExpired() && c.HasRefreshToken()
}

// TokenSet is the result of a code or refresh-token exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time

	// AccountID is set when the provider returns it with the token response.
	AccountID string
}

// AccountIdentity is the identity the provider reports for a token.
type AccountIdentity struct {
	AccountID string
	Email     string
	Name      string
}

// Allowlist is the set of accounts permitted to complete authorization.
// Identifiers match exactly; emails match case-insensitively.
type Allowlist struct {
	ids      map[string]struct{}
	emails   map[string]struct{}
	allowAny bool
}

// NewAllowlist builds an allowlist from raw entries. Entries containing
// "@" are treated as emails, everything else as account identifiers.
func NewAllowlist(entries []string, allowAny bool) Allowlist {
	a := Allowlist{
		ids:      make(map[string]struct{}),
		emails:   make(map[string]struct{}),
		allowAny: allowAny,
	}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "@") {
			a.emails[strings.ToLower(e)] = struct{}{}
		} else {
			a.ids[e] = struct{}{}
		}
	}
	return a
}

// Allows reports whether the identity may be authorized.
func (a Allowlist) Allows(id AccountIdentity) bool {
	if a.allowAny {
		return true
	}
	if id.AccountID != "" {
		if _, ok := a.ids[id.AccountID]; ok {
			return true
		}
	}
	if id.Email != "" {
		if _, ok := a.emails[strings.ToLower(id.Email)]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (a Allowlist) Len() int {
	return len(a.ids) + len(a.emails)
}
