package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ocrbox/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

func TestCredentialsService_Refresh(t *testing.T) {
	store := memory.NewCredentialStore()
	expiry := time.Now().Add(4 * time.Hour)
	provider := &mockAuthProvider{tokens: domain.TokenSet{Expiry: expiry}}
	svc := NewCredentialsService(store, provider)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, domain.AccountCredential{AccountID: "a", AccessToken: "old", RefreshToken: "r"}))

	cred, err := svc.Refresh(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", cred.AccessToken)
	assert.Equal(t, "r", cred.RefreshToken)
	assert.False(t, cred.RefreshedAt.IsZero())

	stored, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", stored.AccessToken)
	assert.True(t, stored.Expiry.Equal(expiry))
}

func TestCredentialsService_RefreshFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no refresh token", func(t *testing.T) {
		store := memory.NewCredentialStore()
		require.NoError(t, store.Put(ctx, domain.AccountCredential{AccountID: "a", AccessToken: "x"}))
		_, err := NewCredentialsService(store, &mockAuthProvider{}).Refresh(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
	})

	t.Run("provider rejects", func(t *testing.T) {
		store := memory.NewCredentialStore()
		require.NoError(t, store.Put(ctx, domain.AccountCredential{AccountID: "a", RefreshToken: "r"}))
		provider := &mockAuthProvider{refreshErr: errors.New("invalid_grant")}
		_, err := NewCredentialsService(store, provider).Refresh(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := NewCredentialsService(memory.NewCredentialStore(), &mockAuthProvider{}).Refresh(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("storage down", func(t *testing.T) {
		_, err := NewCredentialsService(failingCredentialStore{}, &mockAuthProvider{}).Refresh(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})

	t.Run("no provider", func(t *testing.T) {
		_, err := NewCredentialsService(memory.NewCredentialStore(), nil).Refresh(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
	})
}

func TestCredentialsService_ListGetRemove(t *testing.T) {
	store := memory.NewCredentialStore()
	svc := NewCredentialsService(store, nil)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, domain.AccountCredential{AccountID: "a"}))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, svc.Remove(ctx, "a"))
	_, err = svc.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
