package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paygate/internal/auth"
)

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

type setPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.cfg.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ttl := h.cfg.TokenTTL
	if req.RememberMe {
		ttl = auth.RememberMeTokenTTL
	}
	token, err := h.cfg.Tokens.IssueToken(user.ExternalID, ttl)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token, User: userToResponse(user)})
}

func (h *Handler) setPassword(c *gin.Context) {
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.cfg.Users.SetPassword(c.Request.Context(), externalID(c), req.Password); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	state, err := h.cfg.Onboarding.State(c.Request.Context(), externalID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MeResponse{
		User:       userToResponse(state.User),
		Onboarding: stateToResponse(state),
	})
}
