package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"paygate/internal/auth"
)

const ctxExternalID = "external_id"

// requireBearer rejects requests without a valid token. Clients re-authenticate
// silently on token_expired.
func (h *Handler) requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": "token_invalid"})
			return
		}

		subject, err := h.cfg.Tokens.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			code := "token_invalid"
			if errors.Is(err, auth.ErrTokenExpired) {
				code = "token_expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token", "code": code})
			return
		}

		c.Set(ctxExternalID, subject)
		c.Next()
	}
}

// requireEntitlement runs after requireBearer and admits only users whose tier grants
// access to the paid surfaces.
func (h *Handler) requireEntitlement() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.cfg.Users.Get(c.Request.Context(), externalID(c))
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		if !user.Tier.Entitled() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "an active subscription is required", "code": "subscription_required"})
			return
		}
		c.Next()
	}
}

func externalID(c *gin.Context) string {
	return c.GetString(ctxExternalID)
}
