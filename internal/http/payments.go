package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paygate/internal/domain"
	"paygate/internal/service"
)

type createCheckoutRequest struct {
	Email      string `json:"email" binding:"required"`
	ExternalID string `json:"external_id" binding:"required"`
	Tier       string `json:"tier" binding:"required"`
}

func (h *Handler) createCheckoutSession(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cs, err := h.cfg.Broker.CreateSession(c.Request.Context(), service.CreateSessionRequest{
		Email:      req.Email,
		ExternalID: req.ExternalID,
		Tier:       req.Tier,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":   cs.SessionID,
		"checkout_url": cs.CheckoutURL,
		"expires_in":   int(cs.ExpiresIn.Seconds()),
		"expires_at":   cs.ExpiresAt,
	})
}

// paymentWebhook acknowledges every authenticated callback so the provider does not
// retry outcomes we already recorded or deliberately ignore.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := h.cfg.Payments.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			h.cfg.Logger.WithError(err).Warn("payment webhook rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		h.cfg.Logger.WithError(err).Error("payment webhook undecodable")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	logger := h.cfg.Logger.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type})
	if !event.Relevant || event.Outcome == domain.PaymentProcessing || event.SessionID == "" {
		logger.Debug("payment webhook ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	prov, err := h.cfg.Broker.VerifyAndProvision(c.Request.Context(), event.SessionID, event.Reference, event.Outcome)
	switch {
	case err != nil:
		logger.WithError(err).WithField("session_id", event.SessionID).Warn("payment webhook not provisioned")
	case prov.Created:
		h.notifyAccess(prov.User)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// confirmCheckout handles the browser redirect after checkout. The payment is
// confirmed with the provider before anything is provisioned.
func (h *Handler) confirmCheckout(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	checkoutID := strings.TrimSpace(c.Query("checkout_id"))
	if sessionID == "" || checkoutID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and checkout_id are required"})
		return
	}

	result, err := h.cfg.Payments.LookupCheckout(c.Request.Context(), checkoutID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if result.SessionID != sessionID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "checkout does not belong to this session"})
		return
	}
	if result.Outcome == domain.PaymentProcessing {
		c.JSON(http.StatusAccepted, gin.H{"status": "processing", "session_id": sessionID})
		return
	}

	prov, err := h.cfg.Broker.VerifyAndProvision(c.Request.Context(), sessionID, result.Reference, result.Outcome)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if prov.Created {
		h.notifyAccess(prov.User)
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:   prov.Token,
		User:    userToResponse(prov.User),
		Created: prov.Created,
	})
}

func (h *Handler) notifyAccess(user *domain.User) {
	if h.cfg.Notifier != nil {
		h.cfg.Notifier.AccessGranted(user)
	}
}
