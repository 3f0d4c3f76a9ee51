package payment

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"paygate/internal/domain"
)

const testWebhookSecret = "whsec_test"

type fakeCheckoutAPI struct {
	created *stripe.CheckoutSessionParams
	byID    map[string]*stripe.CheckoutSession
}

func (f *fakeCheckoutAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeCheckoutAPI) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	cs, ok := f.byID[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such checkout.session"}
	}
	return cs, nil
}

func newTestGateway(api *fakeCheckoutAPI) *Gateway {
	logger, _ := test.NewNullLogger()
	return newGateway(api, Config{
		WebhookSecret: testWebhookSecret,
		Prices:        map[string]string{"lifetime": "price_lifetime"},
		SuccessURL:    "https://pay.example.com/success",
		CancelURL:     "https://pay.example.com/cancel",
		Logger:        logger,
	})
}

func sign(payload []byte, secret string) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestGateway_CreateCheckout(t *testing.T) {
	api := &fakeCheckoutAPI{}
	g := newTestGateway(api)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handle, err := g.CreateCheckout(context.Background(), &domain.PaymentSession{
		ID:        "sess-1",
		Email:     "a@x.com",
		Tier:      domain.TierLifetime,
		CreatedAt: created,
		ExpiresAt: created.Add(45 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", handle.Reference)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", handle.URL)

	p := api.created
	require.NotNil(t, p)
	assert.Equal(t, "price_lifetime", *p.LineItems[0].Price)
	assert.Equal(t, "sess-1", *p.ClientReferenceID)
	assert.Equal(t, "a@x.com", *p.CustomerEmail)
	assert.Equal(t, "https://pay.example.com/success?session_id=sess-1&checkout_id={CHECKOUT_SESSION_ID}", *p.SuccessURL)
	assert.Equal(t, "sess-1", p.Metadata[metadataSessionID])
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, created.Add(45*time.Minute).Unix(), *p.ExpiresAt)
}

func TestGateway_CreateCheckoutRejectsTTLOutsideStripeWindow(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, ttl := range []time.Duration{30 * time.Minute, 25 * time.Hour} {
		api := &fakeCheckoutAPI{}
		g := newTestGateway(api)
		_, err := g.CreateCheckout(context.Background(), &domain.PaymentSession{
			ID:        "sess-1",
			Email:     "a@x.com",
			Tier:      domain.TierLifetime,
			CreatedAt: created,
			ExpiresAt: created.Add(ttl),
		})
		assert.ErrorContains(t, err, "outside stripe checkout window", "ttl %s", ttl)
		assert.Nil(t, api.created, "ttl %s", ttl)
	}
}

func TestGateway_CreateCheckoutUnknownPrice(t *testing.T) {
	g := newTestGateway(&fakeCheckoutAPI{})
	_, err := g.CreateCheckout(context.Background(), &domain.PaymentSession{ID: "s", Tier: domain.TierPremium})
	assert.Error(t, err)
}

func TestGateway_LookupCheckout(t *testing.T) {
	api := &fakeCheckoutAPI{byID: map[string]*stripe.CheckoutSession{
		"cs_paid":    {ID: "cs_paid", ClientReferenceID: "sess-1", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid},
		"cs_pending": {ID: "cs_pending", Metadata: map[string]string{metadataSessionID: "sess-2"}, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid},
		"cs_expired": {ID: "cs_expired", ClientReferenceID: "sess-3", Status: stripe.CheckoutSessionStatusExpired},
	}}
	g := newTestGateway(api)
	ctx := context.Background()

	res, err := g.LookupCheckout(ctx, "cs_paid")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, domain.PaymentPaid, res.Outcome)

	res, err = g.LookupCheckout(ctx, "cs_pending")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", res.SessionID)
	assert.Equal(t, domain.PaymentProcessing, res.Outcome)

	res, err = g.LookupCheckout(ctx, "cs_expired")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, res.Outcome)

	_, err = g.LookupCheckout(ctx, "cs_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = g.LookupCheckout(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func checkoutEvent(eventType, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": %q,
  "data": {"object": {"id": "cs_1", "object": "checkout.session", "client_reference_id": "sess-1", "payment_status": %q}}
}`, eventType, paymentStatus))
}

func TestGateway_ParseWebhook(t *testing.T) {
	g := newTestGateway(&fakeCheckoutAPI{})

	cases := []struct {
		eventType string
		status    string
		outcome   domain.PaymentOutcome
	}{
		{eventCheckoutCompleted, "paid", domain.PaymentPaid},
		{eventCheckoutCompleted, "unpaid", domain.PaymentProcessing},
		{eventAsyncPaymentSucceeded, "paid", domain.PaymentPaid},
		{eventAsyncPaymentFailed, "unpaid", domain.PaymentFailed},
		{eventCheckoutExpired, "unpaid", domain.PaymentFailed},
	}
	for _, tc := range cases {
		t.Run(tc.eventType+"/"+tc.status, func(t *testing.T) {
			payload := checkoutEvent(tc.eventType, tc.status)
			ev, err := g.ParseWebhook(payload, sign(payload, testWebhookSecret))
			require.NoError(t, err)
			assert.True(t, ev.Relevant)
			assert.Equal(t, "sess-1", ev.SessionID)
			assert.Equal(t, "cs_1", ev.Reference)
			assert.Equal(t, tc.outcome, ev.Outcome)
		})
	}
}

func TestGateway_ParseWebhookIgnoresOtherEvents(t *testing.T) {
	g := newTestGateway(&fakeCheckoutAPI{})
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{}}}`)

	ev, err := g.ParseWebhook(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.False(t, ev.Relevant)
	assert.Equal(t, "customer.created", ev.Type)
}

func TestGateway_ParseWebhookRejectsBadSignature(t *testing.T) {
	g := newTestGateway(&fakeCheckoutAPI{})
	payload := checkoutEvent(eventCheckoutCompleted, "paid")

	_, err := g.ParseWebhook(payload, sign(payload, "whsec_other"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = g.ParseWebhook(payload, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	tampered := checkoutEvent(eventCheckoutCompleted, "unpaid")
	_, err = g.ParseWebhook(tampered, sign(payload, testWebhookSecret))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestNewGatewayRequiresKey(t *testing.T) {
	_, err := NewGateway(Config{})
	assert.Error(t, err)
}
