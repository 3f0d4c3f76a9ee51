package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"paygate/internal/chatbot"
	"paygate/internal/dispatch"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// telegramWebhook only acknowledges; replies are produced on the dispatch pool.
func (h *Handler) telegramWebhook(c *gin.Context) {
	if h.cfg.TelegramSecret != "" {
		got := c.GetHeader(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.TelegramSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false})
			return
		}
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.cfg.Logger.WithError(err).Warn("telegram update undecodable")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	in, ok := chatbot.IncomingFromUpdate(update)
	if !ok || h.cfg.Chat == nil || h.cfg.Pool == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	err := h.cfg.Pool.Submit(dispatch.Job{
		Name: "telegram-message",
		Run: func(ctx context.Context) error {
			return h.cfg.Chat.Handle(ctx, in)
		},
	})
	if err != nil {
		h.cfg.Logger.WithError(err).WithField("update_id", update.UpdateID).Warn("telegram update dropped")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
