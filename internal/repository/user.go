package repository

import (
	"context"
	"time"

	"paygate/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProgress(ctx context.Context, externalID string, progress domain.Progress, at time.Time) error
	// CompleteOnboarding flips onboarding_completed from false to true and stores the
	// summary. It reports false when the user was already completed.
	CompleteOnboarding(ctx context.Context, externalID, displayName string, summary *domain.ProfileSummary, at time.Time) (bool, error)
	SetTier(ctx context.Context, externalID string, tier domain.Tier, at time.Time) error
	SetPasswordHash(ctx context.Context, externalID, hash string, at time.Time) error
}
