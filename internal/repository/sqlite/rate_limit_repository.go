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

type RateLimitRepository struct {
	db DBTX
}

func NewRateLimitRepository(db DBTX) repository.RateLimitRepository {
	return &RateLimitRepository{db: db}
}

func (r *RateLimitRepository) Get(ctx context.Context, key string) (*domain.RateLimitRecord, error) {
	var (
		rec         = domain.RateLimitRecord{Key: key}
		windowStart int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT attempts, window_start FROM rate_limits WHERE key = ?`, key).
		Scan(&rec.Attempts, &windowStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rate limit %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan rate limit: %w", err)
	}
	rec.WindowStart = fromMillis(windowStart)
	return &rec, nil
}

func (r *RateLimitRepository) Increment(ctx context.Context, key string, now, windowFloor time.Time) (*domain.RateLimitRecord, error) {
	var (
		rec         = domain.RateLimitRecord{Key: key}
		windowStart int64
		floor       = toMillis(windowFloor)
	)
	err := r.db.QueryRowContext(ctx, `
INSERT INTO rate_limits (key, attempts, window_start) VALUES (?, 1, ?)
ON CONFLICT(key) DO UPDATE SET
	attempts = CASE WHEN rate_limits.window_start <= ? THEN 1 ELSE rate_limits.attempts + 1 END,
	window_start = CASE WHEN rate_limits.window_start <= ? THEN excluded.window_start ELSE rate_limits.window_start END
RETURNING attempts, window_start`,
		key, toMillis(now), floor, floor,
	).Scan(&rec.Attempts, &windowStart)
	if err != nil {
		return nil, fmt.Errorf("increment rate limit: %w", err)
	}
	rec.WindowStart = fromMillis(windowStart)
	return &rec, nil
}

func (r *RateLimitRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("purge rate limits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return n, nil
}
