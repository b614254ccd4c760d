package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// verifierBytes encodes to 86 characters, inside the 43-128 range
	// allowed for PKCE verifiers.
	verifierBytes = 64
	stateBytes    = 32
)

// randomToken returns n random bytes, base64url encoded without padding.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// newVerifier returns a fresh PKCE code verifier.
func newVerifier() (string, error) {
	return randomToken(verifierBytes)
}

// newStateToken returns a fresh callback state token.
func newStateToken() (string, error) {
	return randomToken(stateBytes)
}

// challengeFor derives the S256 challenge of a verifier.
func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
