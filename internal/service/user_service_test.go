package service

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain"
)

func TestUserService_PasswordLogin(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	creds := newTestCredentials(t, newFakeClock())
	logger, _ := newTestLogger()
	svc := NewUserService(store, creds, logger)

	email := "ada@example.com"
	require.NoError(t, store.Users().Create(ctx, &domain.User{ExternalID: "chat:1", Email: &email, Tier: domain.TierBasic}))

	_, err := svc.Authenticate(ctx, email, "whatever1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.SetPassword(ctx, "chat:1", "short")
	require.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, svc.SetPassword(ctx, "chat:1", "correct horse"))

	user, err := svc.Authenticate(ctx, "  ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "chat:1", user.ExternalID)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.Authenticate(ctx, email, "wrong horse")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, svc.SetPassword(ctx, "chat:404", "long enough"), domain.ErrNotFound)
}

func TestUserService_OverrideTier(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	creds := newTestCredentials(t, newFakeClock())
	logger, hook := newTestLogger()
	svc := NewUserService(store, creds, logger)

	require.NoError(t, store.Users().Create(ctx, &domain.User{ExternalID: "chat:1", Tier: domain.TierPremium}))

	_, err := svc.OverrideTier(ctx, "chat:1", domain.TierNone, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	user, err := svc.OverrideTier(ctx, "chat:1", domain.TierNone, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, domain.TierNone, user.Tier)

	stored, err := svc.Get(ctx, "chat:1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierNone, stored.Tier)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "chargeback", entry.Data["reason"])

	_, err = svc.OverrideTier(ctx, "chat:404", domain.TierBasic, "support ticket")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
