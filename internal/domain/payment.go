package domain

import "time"

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusRejected  SessionStatus = "rejected"
)

// Terminal reports whether no further transition is allowed out of the status.
func (s SessionStatus) Terminal() bool {
	return s != SessionStatusPending
}

// PaymentOutcome is what the payment provider reports for a checkout.
type PaymentOutcome string

const (
	PaymentPaid       PaymentOutcome = "paid"
	PaymentFailed     PaymentOutcome = "failed"
	PaymentProcessing PaymentOutcome = "processing"
)

// PaymentSession is a short-lived record of an initiated but unconfirmed purchase.
type PaymentSession struct {
	ID                string
	Email             string
	Tier              Tier
	ExternalID        string
	LinkedExternalID  *string
	Status            SessionStatus
	ProviderReference *string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	CompletedAt       *time.Time
}

// ExpiredAt reports whether a pending session has outlived its TTL at the given instant.
func (s *PaymentSession) ExpiredAt(now time.Time) bool {
	return s.Status == SessionStatusPending && now.After(s.ExpiresAt)
}

// RateLimitRecord counts attempts for one key within a fixed window.
type RateLimitRecord struct {
	Key         string
	Attempts    int
	WindowStart time.Time
}

// CheckoutHandle is what the payment provider returns for a new checkout.
type CheckoutHandle struct {
	URL       string
	Reference string
}
