package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "paygate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, nil))
	return NewStore(db)
}

func strPtr(s string) *string { return &s }

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := &domain.User{ExternalID: "tg:1", DisplayName: "Ada", Email: strPtr("ada@example.com")}
	require.NoError(t, store.Users().Create(ctx, user))

	got, err := store.Users().GetByExternalID(ctx, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)
	assert.Equal(t, domain.TierNone, got.Tier)
	require.NotNil(t, got.Email)
	assert.Equal(t, "ada@example.com", *got.Email)
	assert.Empty(t, got.OnboardingProgress)
	assert.False(t, got.OnboardingCompleted)

	byEmail, err := store.Users().GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "tg:1", byEmail.ExternalID)

	err = store.Users().Create(ctx, &domain.User{ExternalID: "tg:1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	err = store.Users().Create(ctx, &domain.User{ExternalID: "tg:2", Email: strPtr("ada@example.com")})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = store.Users().GetByExternalID(ctx, "tg:404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserRepository_ProgressAndCompletion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Users().Create(ctx, &domain.User{ExternalID: "u1"}))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	progress := domain.Progress{"name": {Values: []string{"Ada Lovelace"}, AnsweredAt: at}}
	require.NoError(t, store.Users().UpdateProgress(ctx, "u1", progress, at))

	summary := &domain.ProfileSummary{}
	summary.BasicInfo.Name = "Ada Lovelace"

	won, err := store.Users().CompleteOnboarding(ctx, "u1", "Ada Lovelace", summary, at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Users().CompleteOnboarding(ctx, "u1", "Someone Else", summary, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won)

	got, err := store.Users().GetByExternalID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.OnboardingCompleted)
	assert.Equal(t, "Ada Lovelace", got.DisplayName)
	require.NotNil(t, got.OnboardingCompletedAt)
	assert.True(t, got.OnboardingCompletedAt.Equal(at))
	require.NotNil(t, got.ProfileSummary)
	assert.Equal(t, "Ada Lovelace", got.ProfileSummary.BasicInfo.Name)
	assert.Equal(t, []string{"Ada Lovelace"}, got.OnboardingProgress["name"].Values)

	err = store.Users().UpdateProgress(ctx, "missing", progress, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentSessionRepository_TransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	session := &domain.PaymentSession{
		ID:         "s1",
		Email:      "a@x.com",
		Tier:       domain.TierLifetime,
		ExternalID: "chat:123",
		Status:     domain.SessionStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(30 * time.Minute),
	}
	require.NoError(t, store.Sessions().Create(ctx, session))

	ok, err := store.Sessions().Transition(ctx, "s1", domain.SessionStatusPending, domain.SessionStatusCompleted, "ref-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Sessions().Transition(ctx, "s1", domain.SessionStatusPending, domain.SessionStatusExpired, "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Users().Create(ctx, &domain.User{ExternalID: "chat:123"}))
	require.NoError(t, store.Sessions().LinkUser(ctx, "s1", "chat:123"))
	require.NoError(t, store.Sessions().LinkUser(ctx, "s1", "chat:123"))

	require.NoError(t, store.Users().Create(ctx, &domain.User{ExternalID: "chat:999"}))
	assert.Error(t, store.Sessions().LinkUser(ctx, "s1", "chat:999"))

	got, err := store.Sessions().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCompleted, got.Status)
	require.NotNil(t, got.ProviderReference)
	assert.Equal(t, "ref-1", *got.ProviderReference)
	require.NotNil(t, got.LinkedExternalID)
	assert.Equal(t, "chat:123", *got.LinkedExternalID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.ExpiresAt.Equal(now.Add(30*time.Minute)))

	_, err = store.Sessions().Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentSessionRepository_ListExpiredPending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	for i, exp := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
		require.NoError(t, store.Sessions().Create(ctx, &domain.PaymentSession{
			ID:         string(rune('a' + i)),
			Email:      "a@x.com",
			Tier:       domain.TierBasic,
			ExternalID: "u",
			Status:     domain.SessionStatusPending,
			CreatedAt:  now.Add(-2 * time.Hour),
			ExpiresAt:  now.Add(exp),
		}))
	}

	expired, err := store.Sessions().ListExpiredPending(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, "a", expired[0].ID)
	assert.Equal(t, "b", expired[1].ID)
}

func TestRateLimitRepository_IncrementResetsElapsedWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := store.RateLimits()

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	for i := 1; i <= 3; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		rec, err := repo.Increment(ctx, "email:a@x.com", now, now.Add(-window))
		require.NoError(t, err)
		assert.Equal(t, i, rec.Attempts)
		assert.True(t, rec.WindowStart.Equal(start.Add(time.Minute)))
	}

	later := start.Add(30 * time.Minute)
	rec, err := repo.Increment(ctx, "email:a@x.com", later, later.Add(-window))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.True(t, rec.WindowStart.Equal(later))

	got, err := repo.Get(ctx, "email:a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)

	n, err := repo.Purge(ctx, later.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.Get(ctx, "email:a@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, &domain.User{ExternalID: "tx-user"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Users().GetByExternalID(ctx, "tx-user")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.WithinTx(ctx, func(tx repository.Store) error {
		return tx.WithinTx(ctx, func(inner repository.Store) error {
			return inner.Users().Create(ctx, &domain.User{ExternalID: "nested"})
		})
	})
	require.NoError(t, err)

	_, err = store.Users().GetByExternalID(ctx, "nested")
	assert.NoError(t, err)
}

func TestStore_WithinTxWaitsForWriterOnAnotherHandle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	open := func() *Store {
		db, err := Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewStore(db)
	}
	first := open()
	require.NoError(t, Migrate(ctx, first.db, nil))
	second := open()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, first.Sessions().Create(ctx, &domain.PaymentSession{
		ID: "s1", Email: "a@x.com", Tier: domain.TierBasic, ExternalID: "tg:1",
		Status: domain.SessionStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	locked := make(chan struct{})
	release := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- first.WithinTx(ctx, func(tx repository.Store) error {
			ok, err := tx.Sessions().Transition(ctx, "s1", domain.SessionStatusPending, domain.SessionStatusCompleted, "ref", now)
			if err != nil || !ok {
				return errors.Join(err, errors.New("transition not applied"))
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	waiter := make(chan error, 1)
	var seen domain.SessionStatus
	go func() {
		waiter <- second.WithinTx(ctx, func(tx repository.Store) error {
			s, err := tx.Sessions().Get(ctx, "s1")
			if err != nil {
				return err
			}
			seen = s.Status
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	close(release)
	require.NoError(t, <-holder)
	require.NoError(t, <-waiter)
	assert.Equal(t, domain.SessionStatusCompleted, seen)
}
