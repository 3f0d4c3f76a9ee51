package repository

import (
	"context"
	"errors"
)

// ErrConflict reports that a transaction lost a lock race with another writer and
// may be retried.
var ErrConflict = errors.New("concurrent write conflict")

// Store vends repositories bound to one database handle.
type Store interface {
	Users() UserRepository
	Sessions() PaymentSessionRepository
	RateLimits() RateLimitRepository
	// WithinTx runs fn with repositories bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
