package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

const sessionColumns = `id, email, tier, external_id, linked_external_id, status, provider_reference,
	created_at, expires_at, completed_at`

type PaymentSessionRepository struct {
	db DBTX
}

func NewPaymentSessionRepository(db DBTX) repository.PaymentSessionRepository {
	return &PaymentSessionRepository{db: db}
}

func (r *PaymentSessionRepository) Create(ctx context.Context, session *domain.PaymentSession) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO payment_sessions (id, email, tier, external_id, status, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Email,
		string(session.Tier),
		session.ExternalID,
		string(session.Status),
		toMillis(session.CreatedAt),
		toMillis(session.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment session %s: %w", session.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert payment session: %w", err)
	}
	return nil
}

func (r *PaymentSessionRepository) Get(ctx context.Context, id string) (*domain.PaymentSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (r *PaymentSessionRepository) Transition(ctx context.Context, id string, from, to domain.SessionStatus, providerRef string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE payment_sessions
SET status = ?,
	provider_reference = COALESCE(NULLIF(?, ''), provider_reference),
	completed_at = CASE WHEN ? = 'completed' THEN ? ELSE completed_at END
WHERE id = ? AND status = ?`,
		string(to), providerRef, string(to), toMillis(at), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition payment session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PaymentSessionRepository) LinkUser(ctx context.Context, id, externalID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE payment_sessions SET linked_external_id = ?
WHERE id = ? AND (linked_external_id IS NULL OR linked_external_id = ?)`,
		externalID, id, externalID,
	)
	if err != nil {
		return fmt.Errorf("link payment session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("payment session %s already linked to another user", id)
	}
	return nil
}

func (r *PaymentSessionRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.PaymentSession, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM payment_sessions
WHERE status = ? AND expires_at < ?
ORDER BY expires_at ASC
LIMIT ?`,
		string(domain.SessionStatusPending), toMillis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row interface {
	Scan(dest ...any) error
}) (*domain.PaymentSession, error) {
	var (
		s           domain.PaymentSession
		tier        string
		status      string
		linked      sql.NullString
		providerRef sql.NullString
		createdAt   int64
		expiresAt   int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(
		&s.ID,
		&s.Email,
		&tier,
		&s.ExternalID,
		&linked,
		&status,
		&providerRef,
		&createdAt,
		&expiresAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment session: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan payment session: %w", err)
	}
	s.Tier = domain.Tier(tier)
	s.Status = domain.SessionStatus(status)
	s.LinkedExternalID = stringPtr(linked)
	s.ProviderReference = stringPtr(providerRef)
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	s.CompletedAt = timePtr(completedAt)
	return &s, nil
}
