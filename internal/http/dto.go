package http

import (
	"time"

	"paygate/internal/domain"
	"paygate/internal/service"
)

type UserResponse struct {
	ExternalID            string                 `json:"external_id"`
	DisplayName           string                 `json:"display_name"`
	Email                 *string                `json:"email,omitempty"`
	Tier                  domain.Tier            `json:"tier"`
	OnboardingCompleted   bool                   `json:"onboarding_completed"`
	OnboardingCompletedAt *time.Time             `json:"onboarding_completed_at,omitempty"`
	ProfileSummary        *domain.ProfileSummary `json:"profile_summary,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
}

type OnboardingResponse struct {
	Percent       int              `json:"percent"`
	Completed     bool             `json:"completed"`
	JustCompleted bool             `json:"just_completed,omitempty"`
	Next          *domain.Question `json:"next"`
}

type MeResponse struct {
	User       UserResponse       `json:"user"`
	Onboarding OnboardingResponse `json:"onboarding"`
}

type TokenResponse struct {
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
	Created bool         `json:"created,omitempty"`
}

func userToResponse(u *domain.User) UserResponse {
	return UserResponse{
		ExternalID:            u.ExternalID,
		DisplayName:           u.DisplayName,
		Email:                 u.Email,
		Tier:                  u.Tier,
		OnboardingCompleted:   u.OnboardingCompleted,
		OnboardingCompletedAt: u.OnboardingCompletedAt,
		ProfileSummary:        u.ProfileSummary,
		CreatedAt:             u.CreatedAt,
	}
}

func stateToResponse(s *service.OnboardingState) OnboardingResponse {
	return OnboardingResponse{
		Percent:       s.Percent,
		Completed:     s.Completed,
		JustCompleted: s.JustCompleted,
		Next:          s.Next,
	}
}
