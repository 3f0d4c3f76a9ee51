package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"paygate/internal/domain"
)

type submitAnswerRequest struct {
	QuestionID string          `json:"question_id" binding:"required"`
	Value      json.RawMessage `json:"value" binding:"required"`
}

func (h *Handler) listQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": h.cfg.Onboarding.Questions()})
}

func (h *Handler) nextQuestion(c *gin.Context) {
	state, err := h.cfg.Onboarding.State(c.Request.Context(), externalID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stateToResponse(state))
}

func (h *Handler) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	values, ok := decodeAnswer(req.Value)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be a string or a list of strings"})
		return
	}

	state, err := h.cfg.Onboarding.SubmitAnswer(c.Request.Context(), externalID(c), req.QuestionID, values)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ve.Reason, "field": ve.Field})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stateToResponse(state))
}

func decodeAnswer(raw json.RawMessage) ([]string, bool) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, true
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, true
	}
	return nil, false
}
