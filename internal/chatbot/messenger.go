package chatbot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Messenger delivers HTML formatted text to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Telegram sends messages through the Bot API.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger logrus.FieldLogger
}

// NewTelegram authenticates the bot token against endpoint (tgbotapi.APIEndpoint in
// production). Every request is bounded by timeout.
func NewTelegram(token, endpoint string, timeout time.Duration, logger logrus.FieldLogger) (*Telegram, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if logger == nil {
		logger = logrus.New()
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logger.Infof("telegram bot authorized as @%s", api.Self.UserName)
	return &Telegram{api: api, logger: logger}, nil
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.logger.WithField("chat_id", chatID).Debug("telegram message sent")
	return nil
}

// LogMessenger stands in for Telegram when no bot token is configured.
type LogMessenger struct {
	Logger logrus.FieldLogger
}

func (l LogMessenger) Send(_ context.Context, chatID int64, text string) error {
	l.Logger.WithFields(logrus.Fields{"chat_id": chatID, "length": len(text)}).Info("telegram disabled, message not sent")
	return nil
}

var (
	_ Messenger = (*Telegram)(nil)
	_ Messenger = LogMessenger{}
)
