// Package payment adapts the Stripe checkout API to the payment broker.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"paygate/internal/domain"
)

const (
	eventCheckoutCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	eventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	eventCheckoutExpired       = "checkout.session.expired"

	metadataSessionID = "paygate_session_id"
)

// Stripe accepts checkout expiries between 30 minutes and 24 hours after creation.
// MinSessionTTL leaves a minute for the create request to reach Stripe.
const (
	MinSessionTTL = 31 * time.Minute
	MaxSessionTTL = 24 * time.Hour
)

type checkoutAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	// Prices maps an entitlement tier to a Stripe price id.
	Prices     map[string]string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
	Logger     logrus.FieldLogger
}

// Gateway creates and confirms Stripe checkout sessions.
type Gateway struct {
	sessions checkoutAPI
	cfg      Config
}

// CheckoutResult is the provider's current view of one checkout.
type CheckoutResult struct {
	Reference string
	SessionID string
	Outcome   domain.PaymentOutcome
}

// WebhookEvent is the part of a provider callback the broker cares about.
// Relevant is false for event types that carry no payment outcome.
type WebhookEvent struct {
	ID       string
	Type     string
	Relevant bool
	CheckoutResult
}

func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	sc := client.New(cfg.SecretKey, stripe.NewBackends(&http.Client{Timeout: cfg.Timeout}))
	return newGateway(sc.CheckoutSessions, cfg), nil
}

func newGateway(sessions checkoutAPI, cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Gateway{sessions: sessions, cfg: cfg}
}

// CreateCheckout opens a hosted payment page for a pending session.
func (g *Gateway) CreateCheckout(ctx context.Context, session *domain.PaymentSession) (*domain.CheckoutHandle, error) {
	price, ok := g.cfg.Prices[string(session.Tier)]
	if !ok || price == "" {
		return nil, fmt.Errorf("no price configured for tier %q", session.Tier)
	}

	// The hosted page must close no later than the local session, or Stripe could
	// take a payment that provisioning then refuses as expired.
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if ttl < MinSessionTTL || ttl > MaxSessionTTL {
		return nil, fmt.Errorf("session ttl %s outside stripe checkout window [%s, %s]", ttl, MinSessionTTL, MaxSessionTTL)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
		CustomerEmail:     stripe.String(session.Email),
		ClientReferenceID: stripe.String(session.ID),
		SuccessURL:        stripe.String(successURL(g.cfg.SuccessURL, session.ID)),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ExpiresAt:         stripe.Int64(session.ExpiresAt.Unix()),
	}
	params.Context = ctx
	params.AddMetadata(metadataSessionID, session.ID)
	params.AddMetadata("tier", string(session.Tier))

	cs, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout: %w", err)
	}

	g.cfg.Logger.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"checkout_id": cs.ID,
	}).Debug("stripe checkout created")
	return &domain.CheckoutHandle{URL: cs.URL, Reference: cs.ID}, nil
}

// successURL appends our session id and Stripe's checkout id placeholder. The
// placeholder must stay unescaped for Stripe to substitute it.
func successURL(base, sessionID string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "session_id=" + sessionID + "&checkout_id={CHECKOUT_SESSION_ID}"
}

// LookupCheckout asks Stripe for the current state of a checkout.
func (g *Gateway) LookupCheckout(ctx context.Context, reference string) (*CheckoutResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.Invalid("checkout_id", "is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := g.sessions.Get(reference, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("checkout %s: %w", reference, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get stripe checkout: %w", err)
	}

	return &CheckoutResult{
		Reference: cs.ID,
		SessionID: sessionIDOf(cs),
		Outcome:   outcomeOf(cs),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes checkout events.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: stripe signature: %v", domain.ErrUnauthorized, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded, eventAsyncPaymentFailed, eventCheckoutExpired:
	default:
		return out, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	out.Relevant = true
	out.Reference = cs.ID
	out.SessionID = sessionIDOf(&cs)
	switch out.Type {
	case eventAsyncPaymentSucceeded:
		out.Outcome = domain.PaymentPaid
	case eventAsyncPaymentFailed, eventCheckoutExpired:
		out.Outcome = domain.PaymentFailed
	default:
		out.Outcome = outcomeOf(&cs)
	}
	return out, nil
}

func sessionIDOf(cs *stripe.CheckoutSession) string {
	if cs.ClientReferenceID != "" {
		return cs.ClientReferenceID
	}
	return cs.Metadata[metadataSessionID]
}

func outcomeOf(cs *stripe.CheckoutSession) domain.PaymentOutcome {
	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return domain.PaymentPaid
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		return domain.PaymentFailed
	default:
		return domain.PaymentProcessing
	}
}
