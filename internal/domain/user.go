package domain

import (
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierNone     Tier = "none"
	TierBasic    Tier = "basic"
	TierLifetime Tier = "lifetime"
	TierPremium  Tier = "premium"
)

var tierRank = map[Tier]int{
	TierNone:     0,
	TierBasic:    1,
	TierLifetime: 2,
	TierPremium:  3,
}

// ParseTier normalizes a tier name. Unknown names are rejected.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierRank[t]; !ok {
		return "", &ValidationError{Field: "tier", Reason: fmt.Sprintf("unknown tier %q", s)}
	}
	return t, nil
}

// Purchasable reports whether a payment session may request this tier.
func (t Tier) Purchasable() bool {
	return t == TierBasic || t == TierLifetime || t == TierPremium
}

// Entitled reports whether the tier grants access to the paid surfaces.
func (t Tier) Entitled() bool {
	return tierRank[t] > 0
}

// Max returns the higher ranked of the two tiers.
func (t Tier) Max(other Tier) Tier {
	if tierRank[other] > tierRank[t] {
		return other
	}
	return t
}

// User represents a provisioned account keyed by its external identity.
type User struct {
	ExternalID            string
	DisplayName           string
	Email                 *string
	PasswordHash          string
	Tier                  Tier
	OnboardingProgress    Progress
	OnboardingCompleted   bool
	OnboardingCompletedAt *time.Time
	ProfileSummary        *ProfileSummary
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasPassword reports whether a password credential was set for the user.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
