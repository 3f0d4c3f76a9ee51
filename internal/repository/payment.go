package repository

import (
	"context"
	"time"

	"paygate/internal/domain"
)

// PaymentSessionRepository persists PaymentSession records.
type PaymentSessionRepository interface {
	Create(ctx context.Context, session *domain.PaymentSession) error
	Get(ctx context.Context, id string) (*domain.PaymentSession, error)
	// Transition moves a session from one status to another in a single conditional
	// update. It reports false when the session was not in the expected status.
	Transition(ctx context.Context, id string, from, to domain.SessionStatus, providerRef string, at time.Time) (bool, error)
	LinkUser(ctx context.Context, id, externalID string) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.PaymentSession, error)
}

// RateLimitRepository stores fixed-window attempt counters.
type RateLimitRepository interface {
	Get(ctx context.Context, key string) (*domain.RateLimitRecord, error)
	// Increment counts one attempt, starting a fresh window when the stored one began
	// at or before windowFloor.
	Increment(ctx context.Context, key string, now, windowFloor time.Time) (*domain.RateLimitRecord, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}
