package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_RejectsAfterLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(store, 3, time.Hour, clock.Now)

	key := EmailKey("A@x.com")
	assert.Equal(t, "email:a@x.com", key)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Check(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, "attempt %d", i+1)
		require.NoError(t, limiter.Record(ctx, key))
	}

	ok, err := limiter.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := limiter.Check(ctx, IdentityKey("chat:1"))
	require.NoError(t, err)
	assert.True(t, other)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(store, 1, time.Hour, clock.Now)

	require.NoError(t, limiter.Record(ctx, "k"))
	ok, err := limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(59 * time.Minute)
	ok, err = limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, err = limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, limiter.Record(ctx, "k"))
	rec, err := store.RateLimits().Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.True(t, rec.WindowStart.Equal(clock.Now()))
}

func TestRateLimiter_AllowRequiresEveryKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(store, 1, time.Hour, clock.Now)

	require.NoError(t, limiter.Record(ctx, IdentityKey("chat:1")))

	ok, err := limiter.Allow(ctx, EmailKey("a@x.com"), IdentityKey("chat:1"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, EmailKey("a@x.com"), IdentityKey("chat:2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_Purge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(store, 5, time.Hour, clock.Now)

	require.NoError(t, limiter.Record(ctx, "old"))
	clock.Advance(90 * time.Minute)
	require.NoError(t, limiter.Record(ctx, "new"))

	n, err := limiter.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRateLimiter_ReserveRejectsWithoutCounting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newFakeClock()
	limiter := NewRateLimiter(store, 1, time.Hour, clock.Now)

	ok, err := limiter.Reserve(ctx, EmailKey("a@x.com"), IdentityKey("chat:1"))
	require.NoError(t, err)
	require.True(t, ok)

	// the email is spent, so the second identity must not lose budget either
	ok, err = limiter.Reserve(ctx, EmailKey("a@x.com"), IdentityKey("chat:2"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Check(ctx, IdentityKey("chat:2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_ReserveHoldsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	first, second := newSharedStores(t)
	clock := newFakeClock()
	limiters := []*RateLimiter{
		NewRateLimiter(first, 5, time.Hour, clock.Now),
		NewRateLimiter(second, 5, time.Hour, clock.Now),
	}

	const callers = 20
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(l *RateLimiter) {
			defer wg.Done()
			ok, err := l.Reserve(ctx, EmailKey("a@x.com"), IdentityKey("chat:1"))
			if assert.NoError(t, err) && ok {
				accepted.Add(1)
			}
		}(limiters[i%len(limiters)])
	}
	wg.Wait()

	assert.Equal(t, int32(5), accepted.Load())
}
