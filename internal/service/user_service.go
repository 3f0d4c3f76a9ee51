package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
)

// PasswordHasher hashes and checks password credentials.
type PasswordHasher interface {
	HashPassword(plaintext string) string
	VerifyPassword(plaintext, stored string) bool
}

// UserService describes account operations outside provisioning and onboarding.
type UserService interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	SetPassword(ctx context.Context, externalID, password string) error
	Get(ctx context.Context, externalID string) (*domain.User, error)
	OverrideTier(ctx context.Context, externalID string, tier domain.Tier, reason string) (*domain.User, error)
}

type userService struct {
	store  repository.Store
	hasher PasswordHasher
	now    func() time.Time
	logger logrus.FieldLogger
}

func NewUserService(store repository.Store, hasher PasswordHasher, logger logrus.FieldLogger) UserService {
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		store:  store,
		hasher: hasher,
		now:    time.Now,
		logger: logger,
	}
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.HasPassword() || !s.hasher.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

func (s *userService) SetPassword(ctx context.Context, externalID, password string) error {
	if len(strings.TrimSpace(password)) < 8 {
		return domain.Invalid("password", "must be at least 8 characters")
	}
	return s.store.Users().SetPasswordHash(ctx, externalID, s.hasher.HashPassword(password), s.now().UTC())
}

func (s *userService) Get(ctx context.Context, externalID string) (*domain.User, error) {
	user, err := s.store.Users().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

// OverrideTier is the administrative path for granting or revoking access outside
// of a payment.
func (s *userService) OverrideTier(ctx context.Context, externalID string, tier domain.Tier, reason string) (*domain.User, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Invalid("reason", "is required for manual overrides")
	}

	var user *domain.User
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Users().GetByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if err := tx.Users().SetTier(ctx, externalID, tier, s.now().UTC()); err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"external_id": externalID,
			"from":        current.Tier,
			"to":          tier,
			"reason":      reason,
		}).Warn("manual tier override")
		current.Tier = tier
		user = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clone := *user
	clone.PasswordHash = ""
	return &clone
}
