package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"paygate/internal/domain"
	"paygate/internal/repository"
)

// OnboardingService drives the questionnaire for provisioned users.
type OnboardingService interface {
	Questions() []domain.Question
	NextUnanswered(user *domain.User) *domain.Question
	ProgressPercent(user *domain.User) int
	State(ctx context.Context, externalID string) (*OnboardingState, error)
	SubmitAnswer(ctx context.Context, externalID, questionID string, values []string) (*OnboardingState, error)
}

// OnboardingState is a snapshot of a user's questionnaire after a read or write.
type OnboardingState struct {
	User          *domain.User
	Percent       int
	Next          *domain.Question
	Completed     bool
	JustCompleted bool
}

// CompletionHook runs once per user after onboarding completes.
type CompletionHook func(ctx context.Context, user *domain.User)

type OnboardingConfig struct {
	Catalog    Catalog
	OnComplete CompletionHook
	Now        func() time.Time
	Logger     logrus.FieldLogger
}

type onboardingService struct {
	store   repository.Store
	catalog Catalog
	cfg     OnboardingConfig
}

func NewOnboardingService(store repository.Store, cfg OnboardingConfig) OnboardingService {
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &onboardingService{store: store, catalog: cfg.Catalog, cfg: cfg}
}

func (s *onboardingService) Questions() []domain.Question {
	return append([]domain.Question(nil), s.catalog...)
}

func (s *onboardingService) NextUnanswered(user *domain.User) *domain.Question {
	return s.catalog.NextUnanswered(user.OnboardingProgress)
}

func (s *onboardingService) ProgressPercent(user *domain.User) int {
	return s.catalog.Percent(user.OnboardingProgress)
}

func (s *onboardingService) State(ctx context.Context, externalID string) (*OnboardingState, error) {
	user, err := s.store.Users().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.stateOf(user, false), nil
}

func (s *onboardingService) SubmitAnswer(ctx context.Context, externalID, questionID string, values []string) (*OnboardingState, error) {
	q, ok := s.catalog.Find(questionID)
	if !ok {
		return nil, fmt.Errorf("question %q: %w", questionID, domain.ErrNotFound)
	}
	values, err := NormalizeAnswer(q, values)
	if err != nil {
		return nil, err
	}

	var (
		user          *domain.User
		justCompleted bool
	)
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Users().GetByExternalID(ctx, externalID)
		if err != nil {
			return err
		}

		now := s.cfg.Now().UTC()
		progress := make(domain.Progress, len(current.OnboardingProgress)+1)
		for k, v := range current.OnboardingProgress {
			progress[k] = v
		}
		progress[q.ID] = domain.Answer{Values: values, AnsweredAt: now}

		if err := tx.Users().UpdateProgress(ctx, externalID, progress, now); err != nil {
			return err
		}
		current.OnboardingProgress = progress
		current.UpdatedAt = now

		if current.OnboardingCompleted || !s.catalog.RequiredAnswered(progress) {
			user = current
			return nil
		}

		summary := SynthesizeProfile(progress)
		won, err := tx.Users().CompleteOnboarding(ctx, externalID, summary.BasicInfo.Name, summary, now)
		if err != nil {
			return err
		}
		if !won {
			user, err = tx.Users().GetByExternalID(ctx, externalID)
			return err
		}
		current.OnboardingCompleted = true
		current.OnboardingCompletedAt = &now
		current.ProfileSummary = summary
		if summary.BasicInfo.Name != "" {
			current.DisplayName = summary.BasicInfo.Name
		}
		user = current
		justCompleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if justCompleted {
		s.cfg.Logger.WithField("external_id", externalID).Info("onboarding completed")
		if s.cfg.OnComplete != nil {
			s.cfg.OnComplete(ctx, sanitizeUser(user))
		}
	}
	return s.stateOf(user, justCompleted), nil
}

func (s *onboardingService) stateOf(user *domain.User, justCompleted bool) *OnboardingState {
	return &OnboardingState{
		User:          sanitizeUser(user),
		Percent:       s.catalog.Percent(user.OnboardingProgress),
		Next:          s.catalog.NextUnanswered(user.OnboardingProgress),
		Completed:     user.OnboardingCompleted,
		JustCompleted: justCompleted,
	}
}
