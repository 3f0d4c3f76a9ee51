package service

import (
	"fmt"
	"strings"

	"paygate/internal/domain"
)

// SynthesizeProfile groups onboarding answers into the summary buckets. It is a pure
// function of progress.
func SynthesizeProfile(progress domain.Progress) *domain.ProfileSummary {
	text := func(id string) string {
		if a, ok := progress[id]; ok {
			return a.Text()
		}
		return ""
	}

	s := &domain.ProfileSummary{}
	s.BasicInfo.Name = text("name")
	s.BasicInfo.Email = text("email")
	s.BasicInfo.TelegramUsername = strings.TrimPrefix(text("telegram_username"), "@")

	s.FinancialProfile.CurrentIncome = text("current_income")
	s.FinancialProfile.IncomeGoal = text("income_goal")
	s.FinancialProfile.AvailableCapital = text("available_capital")

	s.BusinessProfile.ExperienceLevel = text("business_experience")
	s.BusinessProfile.CurrentStage = text("current_stage")
	s.BusinessProfile.TimeCommitment = text("time_commitment")
	s.BusinessProfile.BiggestChallenge = text("biggest_challenge")
	s.BusinessProfile.UrgencyLevel = text("urgency_level")

	s.Skills = []string{}
	if a, ok := progress["skills_expertise"]; ok {
		s.Skills = append(s.Skills, a.Values...)
	}
	return s
}

const noProfileContext = "New user - no profile data available yet."

// AdvisorContext formats a completed user's profile for the consultation prompt.
func AdvisorContext(user *domain.User) string {
	if user == nil || !user.OnboardingCompleted || user.ProfileSummary == nil {
		return noProfileContext
	}
	p := user.ProfileSummary
	or := func(v string) string {
		if v == "" {
			return "Unknown"
		}
		return v
	}

	var b strings.Builder
	b.WriteString("USER PROFILE CONTEXT:\n")
	fmt.Fprintf(&b, "- Name: %s\n", or(p.BasicInfo.Name))
	fmt.Fprintf(&b, "- Current Income: %s\n", or(p.FinancialProfile.CurrentIncome))
	fmt.Fprintf(&b, "- Income Goal: %s\n", or(p.FinancialProfile.IncomeGoal))
	fmt.Fprintf(&b, "- Experience Level: %s\n", or(p.BusinessProfile.ExperienceLevel))
	fmt.Fprintf(&b, "- Current Stage: %s\n", or(p.BusinessProfile.CurrentStage))
	fmt.Fprintf(&b, "- Available Capital: %s\n", or(p.FinancialProfile.AvailableCapital))
	fmt.Fprintf(&b, "- Time Commitment: %s\n", or(p.BusinessProfile.TimeCommitment))
	fmt.Fprintf(&b, "- Biggest Challenge: %s\n", or(p.BusinessProfile.BiggestChallenge))
	fmt.Fprintf(&b, "- Urgency Level: %s\n", or(p.BusinessProfile.UrgencyLevel))
	fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(p.Skills, ", "))
	b.WriteString("\nTailor responses to this user's situation, experience level and goals.")
	return b.String()
}
