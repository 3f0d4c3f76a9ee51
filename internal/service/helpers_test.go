package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"paygate/internal/auth"
	"paygate/internal/domain"
	"paygate/internal/repository"
	"paygate/internal/repository/sqlite"
)

func newTestStore(t *testing.T) repository.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "paygate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db, nil))
	return sqlite.NewStore(db)
}

// newSharedStores opens two independent handles on one database file, the way two
// server processes would.
func newSharedStores(t *testing.T) (repository.Store, repository.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shared.db")
	open := func() *sql.DB {
		db, err := sqlite.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return db
	}
	first := open()
	require.NoError(t, sqlite.Migrate(context.Background(), first, nil))
	second := open()
	return sqlite.NewStore(first), sqlite.NewStore(second)
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeCheckout struct {
	mu       sync.Mutex
	sessions []string
	err      error
}

func (f *fakeCheckout) CreateCheckout(_ context.Context, session *domain.PaymentSession) (*domain.CheckoutHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sessions = append(f.sessions, session.ID)
	return &domain.CheckoutHandle{
		URL:       "https://checkout.test/" + session.ID,
		Reference: "cs_" + session.ID,
	}, nil
}

func newTestCredentials(t *testing.T, clock *fakeClock) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager("test-secret-test-secret-test-secret", false, auth.WithClock(clock.Now))
	require.NoError(t, err)
	return m
}

type brokerFixture struct {
	store    repository.Store
	clock    *fakeClock
	checkout *fakeCheckout
	creds    *auth.Manager
	limiter  *RateLimiter
	broker   PaymentBroker
	hook     *test.Hook
}

func newBrokerFixture(t *testing.T) *brokerFixture {
	t.Helper()
	store := newTestStore(t)
	clock := newFakeClock()
	logger, hook := newTestLogger()
	checkout := &fakeCheckout{}
	creds := newTestCredentials(t, clock)
	limiter := NewRateLimiter(store, 5, time.Hour, clock.Now)
	broker := NewPaymentBroker(store, limiter, checkout, creds, BrokerConfig{
		SessionTTL: 30 * time.Minute,
		Now:        clock.Now,
		Logger:     logger,
	})
	return &brokerFixture{
		store:    store,
		clock:    clock,
		checkout: checkout,
		creds:    creds,
		limiter:  limiter,
		broker:   broker,
		hook:     hook,
	}
}
