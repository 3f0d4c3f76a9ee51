package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

const userColumns = `external_id, display_name, email, password_hash, tier, onboarding_progress,
	onboarding_completed, onboarding_completed_at, profile_summary, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	if user.Tier == "" {
		user.Tier = domain.TierNone
	}
	if user.OnboardingProgress == nil {
		user.OnboardingProgress = domain.Progress{}
	}

	progress, err := json.Marshal(user.OnboardingProgress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO users (external_id, display_name, email, password_hash, tier, onboarding_progress, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ExternalID,
		user.DisplayName,
		nullString(user.Email),
		user.PasswordHash,
		string(user.Tier),
		string(progress),
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.ExternalID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *UserRepository) UpdateProgress(ctx context.Context, externalID string, progress domain.Progress, at time.Time) error {
	encoded, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE users SET onboarding_progress = ?, updated_at = ?
WHERE external_id = ?`,
		string(encoded), toMillis(at), externalID,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return expectOne(res, "user")
}

func (r *UserRepository) CompleteOnboarding(ctx context.Context, externalID, displayName string, summary *domain.ProfileSummary, at time.Time) (bool, error) {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return false, fmt.Errorf("encode profile summary: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE users
SET onboarding_completed = 1,
	onboarding_completed_at = ?,
	profile_summary = ?,
	display_name = CASE WHEN ? <> '' THEN ? ELSE display_name END,
	updated_at = ?
WHERE external_id = ? AND onboarding_completed = 0`,
		toMillis(at), string(encoded), displayName, displayName, toMillis(at), externalID,
	)
	if err != nil {
		return false, fmt.Errorf("complete onboarding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete onboarding rows: %w", err)
	}
	return n == 1, nil
}

func (r *UserRepository) SetTier(ctx context.Context, externalID string, tier domain.Tier, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET tier = ?, updated_at = ? WHERE external_id = ?`,
		string(tier), toMillis(at), externalID)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	return expectOne(res, "user")
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, externalID, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE external_id = ?`,
		hash, toMillis(at), externalID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res, "user")
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user        domain.User
		email       sql.NullString
		tier        string
		progress    string
		completed   int
		completedAt sql.NullInt64
		summary     sql.NullString
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(
		&user.ExternalID,
		&user.DisplayName,
		&email,
		&user.PasswordHash,
		&tier,
		&progress,
		&completed,
		&completedAt,
		&summary,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Email = stringPtr(email)
	user.Tier = domain.Tier(tier)
	user.OnboardingCompleted = completed == 1
	user.OnboardingCompletedAt = timePtr(completedAt)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)

	user.OnboardingProgress = domain.Progress{}
	if progress != "" {
		if err := json.Unmarshal([]byte(progress), &user.OnboardingProgress); err != nil {
			return nil, fmt.Errorf("decode progress: %w", err)
		}
	}
	if summary.Valid && summary.String != "" {
		var s domain.ProfileSummary
		if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
			return nil, fmt.Errorf("decode profile summary: %w", err)
		}
		user.ProfileSummary = &s
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
