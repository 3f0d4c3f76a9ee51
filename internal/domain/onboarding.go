package domain

import (
	"strings"
	"time"
)

type InputKind string

const (
	InputText           InputKind = "text"
	InputSingleChoice   InputKind = "choice"
	InputMultipleChoice InputKind = "multiple_choice"
)

// Question is one entry of the onboarding catalog.
type Question struct {
	ID       string    `json:"id"`
	Prompt   string    `json:"question"`
	Kind     InputKind `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`

	Validate func(values []string) error `json:"-"`
}

// Answer is a stored response to a catalog question.
type Answer struct {
	Values     []string  `json:"answer"`
	AnsweredAt time.Time `json:"timestamp"`
}

// Text joins the answer values for display.
func (a Answer) Text() string {
	return strings.Join(a.Values, ", ")
}

// Progress maps question ids to answers. Ordering is defined by the catalog.
type Progress map[string]Answer

// ProfileSummary groups onboarding answers into the buckets consumed by advice generation.
type ProfileSummary struct {
	BasicInfo struct {
		Name             string `json:"name"`
		Email            string `json:"email"`
		TelegramUsername string `json:"telegram_username"`
	} `json:"basic_info"`
	FinancialProfile struct {
		CurrentIncome    string `json:"current_income"`
		IncomeGoal       string `json:"income_goal"`
		AvailableCapital string `json:"available_capital"`
	} `json:"financial_profile"`
	BusinessProfile struct {
		ExperienceLevel  string `json:"experience_level"`
		CurrentStage     string `json:"current_stage"`
		TimeCommitment   string `json:"time_commitment"`
		BiggestChallenge string `json:"biggest_challenge"`
		UrgencyLevel     string `json:"urgency_level"`
	} `json:"business_profile"`
	Skills []string `json:"skills_and_expertise"`
}
