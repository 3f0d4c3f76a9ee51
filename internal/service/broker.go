package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

const provisionAttempts = 3

// CheckoutProvider opens a hosted checkout for a pending session.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, session *domain.PaymentSession) (*domain.CheckoutHandle, error)
}

// TokenIssuer signs bearer tokens for a subject.
type TokenIssuer interface {
	IssueToken(subject string, ttl time.Duration) (string, error)
}

// PaymentBroker owns the payment session lifecycle and account provisioning.
type PaymentBroker interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CheckoutSession, error)
	// VerifyAndProvision is the single idempotent entry point for both the redirect and
	// the provider callback. Repeated or concurrent calls for one session yield one user.
	VerifyAndProvision(ctx context.Context, sessionID, providerRef string, outcome domain.PaymentOutcome) (*Provision, error)
	Session(ctx context.Context, sessionID string) (*domain.PaymentSession, error)
	ExpireStale(ctx context.Context) (int, error)
}

type CreateSessionRequest struct {
	Email      string
	ExternalID string
	Tier       string
}

type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
	ExpiresAt   time.Time
	ExpiresIn   time.Duration
}

// Provision is the outcome of a successful VerifyAndProvision call.
type Provision struct {
	User    *domain.User
	Token   string
	Created bool
}

type BrokerConfig struct {
	SessionTTL      time.Duration
	TokenTTL        time.Duration
	ProviderTimeout time.Duration
	Now             func() time.Time
	Logger          logrus.FieldLogger
}

type paymentBroker struct {
	store    repository.Store
	limiter  *RateLimiter
	checkout CheckoutProvider
	tokens   TokenIssuer
	cfg      BrokerConfig
}

func NewPaymentBroker(store repository.Store, limiter *RateLimiter, checkout CheckoutProvider, tokens TokenIssuer, cfg BrokerConfig) PaymentBroker {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &paymentBroker{
		store:    store,
		limiter:  limiter,
		checkout: checkout,
		tokens:   tokens,
		cfg:      cfg,
	}
}

func (b *paymentBroker) CreateSession(ctx context.Context, req CreateSessionRequest) (*CheckoutSession, error) {
	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, domain.Invalid("email", "must be a valid email address")
	}
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return nil, domain.Invalid("external_id", "is required")
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return nil, err
	}
	if !tier.Purchasable() {
		return nil, domain.Invalid("tier", "is not purchasable")
	}

	allowed, err := b.limiter.Reserve(ctx, EmailKey(email), IdentityKey(externalID))
	if err != nil {
		return nil, err
	}
	if !allowed {
		b.cfg.Logger.WithFields(logrus.Fields{"email": email, "external_id": externalID}).Warn("checkout rate limited")
		return nil, fmt.Errorf("checkout for %s: %w", email, domain.ErrRateLimited)
	}

	now := b.cfg.Now().UTC()
	session := &domain.PaymentSession{
		ID:         uuid.NewString(),
		Email:      email,
		Tier:       tier,
		ExternalID: externalID,
		Status:     domain.SessionStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(b.cfg.SessionTTL),
	}
	if err := b.store.Sessions().Create(ctx, session); err != nil {
		return nil, err
	}

	providerCtx, cancel := context.WithTimeout(ctx, b.cfg.ProviderTimeout)
	defer cancel()
	handle, err := b.checkout.CreateCheckout(providerCtx, session)
	if err != nil {
		b.cfg.Logger.WithError(err).WithField("session_id", session.ID).Error("create checkout")
		return nil, fmt.Errorf("%w: create checkout: %v", domain.ErrInternal, err)
	}

	b.cfg.Logger.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"external_id": externalID,
		"tier":        tier,
	}).Info("payment session created")

	return &CheckoutSession{
		SessionID:   session.ID,
		CheckoutURL: handle.URL,
		ExpiresAt:   session.ExpiresAt,
		ExpiresIn:   b.cfg.SessionTTL,
	}, nil
}

func (b *paymentBroker) Session(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	return b.store.Sessions().Get(ctx, sessionID)
}

func (b *paymentBroker) VerifyAndProvision(ctx context.Context, sessionID, providerRef string, outcome domain.PaymentOutcome) (*Provision, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.Invalid("session_id", "is required")
	}
	switch outcome {
	case "":
		outcome = domain.PaymentPaid
	case domain.PaymentPaid, domain.PaymentFailed:
	default:
		return nil, domain.Invalid("outcome", fmt.Sprintf("unsupported outcome %q", outcome))
	}

	log := b.cfg.Logger.WithField("session_id", sessionID)

	// A lost compare-and-set or lock race means another caller finished the transition;
	// the next pass observes the terminal state it left behind.
	for attempt := 0; attempt < provisionAttempts; attempt++ {
		user, created, lost, err := b.provisionOnce(ctx, sessionID, strings.TrimSpace(providerRef), outcome)
		if err != nil {
			return nil, err
		}
		if lost {
			log.Debug("lost session transition, re-reading")
			continue
		}

		token, err := b.tokens.IssueToken(user.ExternalID, b.cfg.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: issue token: %v", domain.ErrInternal, err)
		}
		if created {
			log.WithFields(logrus.Fields{"external_id": user.ExternalID, "tier": user.Tier}).Info("account provisioned")
		}
		return &Provision{User: sanitizeUser(user), Token: token, Created: created}, nil
	}

	log.Error("session transition did not settle")
	return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrInternal)
}

func (b *paymentBroker) provisionOnce(ctx context.Context, sessionID, providerRef string, outcome domain.PaymentOutcome) (*domain.User, bool, bool, error) {
	var (
		user       *domain.User
		created    bool
		lost       bool
		outcomeErr error
	)

	err := b.store.WithinTx(ctx, func(tx repository.Store) error {
		session, err := tx.Sessions().Get(ctx, sessionID)
		if err != nil {
			return err
		}

		switch session.Status {
		case domain.SessionStatusCompleted:
			user, err = linkedUser(ctx, tx, session)
			return err
		case domain.SessionStatusExpired:
			outcomeErr = fmt.Errorf("session %s: %w", sessionID, domain.ErrExpired)
			return nil
		case domain.SessionStatusRejected:
			outcomeErr = fmt.Errorf("session %s: %w", sessionID, domain.ErrRejected)
			return nil
		}

		now := b.cfg.Now().UTC()
		target := domain.SessionStatusCompleted
		switch {
		case session.ExpiredAt(now):
			target = domain.SessionStatusExpired
			outcomeErr = fmt.Errorf("session %s: %w", sessionID, domain.ErrExpired)
		case outcome == domain.PaymentFailed:
			target = domain.SessionStatusRejected
			outcomeErr = fmt.Errorf("session %s: %w", sessionID, domain.ErrRejected)
		}

		ok, err := tx.Sessions().Transition(ctx, sessionID, domain.SessionStatusPending, target, providerRef, now)
		if err != nil {
			return err
		}
		if !ok {
			lost = true
			outcomeErr = nil
			return nil
		}
		if target != domain.SessionStatusCompleted {
			return nil
		}

		user, created, err = b.upsertUser(ctx, tx, session, now)
		if err != nil {
			return err
		}
		return tx.Sessions().LinkUser(ctx, sessionID, user.ExternalID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			b.cfg.Logger.WithField("session_id", sessionID).WithError(err).Debug("session transition conflicted")
			return nil, false, true, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, false, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, false, false, fmt.Errorf("provision session %s: %w", sessionID, err)
	}
	if outcomeErr != nil {
		b.cfg.Logger.WithField("session_id", sessionID).WithError(outcomeErr).Info("session not provisioned")
		return nil, false, false, outcomeErr
	}
	return user, created, lost, nil
}

func linkedUser(ctx context.Context, tx repository.Store, session *domain.PaymentSession) (*domain.User, error) {
	id := session.ExternalID
	if session.LinkedExternalID != nil {
		id = *session.LinkedExternalID
	}
	user, err := tx.Users().GetByExternalID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("linked user of completed session: %w", err)
	}
	return user, nil
}

// upsertUser is keyed by external identity, not by session: one user may hold many
// historical sessions.
func (b *paymentBroker) upsertUser(ctx context.Context, tx repository.Store, session *domain.PaymentSession, now time.Time) (*domain.User, bool, error) {
	existing, err := tx.Users().GetByExternalID(ctx, session.ExternalID)
	switch {
	case err == nil:
		tier := existing.Tier.Max(session.Tier)
		if tier != existing.Tier {
			if err := tx.Users().SetTier(ctx, existing.ExternalID, tier, now); err != nil {
				return nil, false, err
			}
			existing.Tier = tier
			existing.UpdatedAt = now
		}
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	user := &domain.User{
		ExternalID:  session.ExternalID,
		DisplayName: displayNameFromEmail(session.Email),
		Tier:        session.Tier,
		CreatedAt:   now,
	}

	_, err = tx.Users().GetByEmail(ctx, session.Email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		email := session.Email
		user.Email = &email
	case err != nil:
		return nil, false, err
	default:
		b.cfg.Logger.WithFields(logrus.Fields{
			"session_id":  session.ID,
			"external_id": session.ExternalID,
		}).Warn("email already bound to another account, provisioning without email")
	}

	if err := tx.Users().Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func displayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func (b *paymentBroker) ExpireStale(ctx context.Context) (int, error) {
	now := b.cfg.Now().UTC()
	sessions, err := b.store.Sessions().ListExpiredPending(ctx, now, 500)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range sessions {
		ok, err := b.store.Sessions().Transition(ctx, sessions[i].ID, domain.SessionStatusPending, domain.SessionStatusExpired, "", now)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		b.cfg.Logger.WithField("count", expired).Info("expired stale payment sessions")
	}
	return expired, nil
}
