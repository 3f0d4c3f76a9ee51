package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// RateLimiter keeps fixed-window attempt counters per key in the store, so every
// process sharing the database sees the same budget.
type RateLimiter struct {
	store  repository.Store
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(store repository.Store, limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{store: store, limit: limit, window: window, now: now}
}

// EmailKey namespaces a rate limit key for an email address.
func EmailKey(email string) string {
	return "email:" + normalizeEmail(email)
}

// IdentityKey namespaces a rate limit key for an external identity.
func IdentityKey(externalID string) string {
	return "identity:" + externalID
}

// Check reports whether key still has budget in its current window.
func (l *RateLimiter) Check(ctx context.Context, key string) (bool, error) {
	rec, err := l.store.RateLimits().Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	if !rec.WindowStart.After(l.now().Add(-l.window)) {
		return true, nil
	}
	return rec.Attempts < l.limit, nil
}

// Record counts one attempt against key.
func (l *RateLimiter) Record(ctx context.Context, key string) error {
	now := l.now()
	if _, err := l.store.RateLimits().Increment(ctx, key, now, now.Add(-l.window)); err != nil {
		return fmt.Errorf("rate limit record: %w", err)
	}
	return nil
}

// Allow passes only when every key passes Check.
func (l *RateLimiter) Allow(ctx context.Context, keys ...string) (bool, error) {
	for _, key := range keys {
		ok, err := l.Check(ctx, key)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

var errOverBudget = errors.New("rate limit budget exhausted")

// Reserve counts one attempt against every key in a single transaction and reports
// whether all of them stayed within budget. A rejected reservation counts nothing.
func (l *RateLimiter) Reserve(ctx context.Context, keys ...string) (bool, error) {
	now := l.now()
	err := l.store.WithinTx(ctx, func(tx repository.Store) error {
		for _, key := range keys {
			rec, err := tx.RateLimits().Increment(ctx, key, now, now.Add(-l.window))
			if err != nil {
				return fmt.Errorf("rate limit reserve: %w", err)
			}
			if rec.Attempts > l.limit {
				return errOverBudget
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, errOverBudget):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Window returns the configured window length.
func (l *RateLimiter) Window() time.Duration {
	return l.window
}

// Purge drops records whose window already elapsed.
func (l *RateLimiter) Purge(ctx context.Context) (int64, error) {
	return l.store.RateLimits().Purge(ctx, l.now().Add(-l.window))
}
