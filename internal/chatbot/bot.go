// Package chatbot drives the Telegram conversation: access checks, onboarding over
// chat and consultation once the profile is complete.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"paygate/internal/domain"
	"paygate/internal/service"
)

const identityPrefix = "tg:"

// IdentityFor maps a Telegram user id to an external identity.
func IdentityFor(userID int64) string {
	return identityPrefix + strconv.FormatInt(userID, 10)
}

// ChatIDFor reverses IdentityFor. Private chats share the user's id.
func ChatIDFor(externalID string) (int64, bool) {
	raw, ok := strings.CutPrefix(externalID, identityPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Incoming is a text message received from the chat platform.
type Incoming struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// IncomingFromUpdate extracts a text message from a webhook update.
func IncomingFromUpdate(u tgbotapi.Update) (Incoming, bool) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return Incoming{}, false
	}
	return Incoming{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
		Text:     msg.Text,
	}, true
}

// Consultant answers free text for users with a completed profile.
type Consultant interface {
	Consult(ctx context.Context, profileContext, message string) string
}

type Config struct {
	PurchaseURL string
	Logger      logrus.FieldLogger
}

type Bot struct {
	users      service.UserService
	onboarding service.OnboardingService
	consultant Consultant
	messenger  Messenger
	cfg        Config
}

func NewBot(users service.UserService, onboarding service.OnboardingService, consultant Consultant, messenger Messenger, cfg Config) *Bot {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Bot{
		users:      users,
		onboarding: onboarding,
		consultant: consultant,
		messenger:  messenger,
		cfg:        cfg,
	}
}

// Handle processes one inbound message and sends the reply.
func (b *Bot) Handle(ctx context.Context, in Incoming) error {
	reply, err := b.respond(ctx, in)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	if err := b.messenger.Send(ctx, in.ChatID, reply); err != nil {
		return fmt.Errorf("reply to chat %d: %w", in.ChatID, err)
	}
	return nil
}

func (b *Bot) respond(ctx context.Context, in Incoming) (string, error) {
	cmd := ParseCommand(in.Text)
	logger := b.cfg.Logger.WithFields(logrus.Fields{"user_id": in.UserID, "chat_id": in.ChatID})

	if cmd.Kind == CommandHelp {
		return helpMessage, nil
	}

	user, err := b.users.Get(ctx, IdentityFor(in.UserID))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Info("message from unknown user")
		return accessRequiredMessage(b.cfg.PurchaseURL), nil
	case err != nil:
		return "", err
	case !user.Tier.Entitled():
		logger.Info("message from user without entitlement")
		return accessRequiredMessage(b.cfg.PurchaseURL), nil
	}

	switch cmd.Kind {
	case CommandStart:
		if user.OnboardingCompleted {
			return welcomeBackMessage, nil
		}
		return welcomeMessage + "\n\n" + b.nextQuestion(user), nil
	case CommandProgress:
		return progressMessage(b.onboarding.ProgressPercent(user), b.onboarding.NextUnanswered(user), user.OnboardingCompleted), nil
	case CommandUnknown:
		return unknownCommandMessage, nil
	}

	if !user.OnboardingCompleted {
		return b.answer(ctx, user, cmd.Text)
	}

	logger.Debug("consulting advisor")
	return b.consultant.Consult(ctx, service.AdvisorContext(user), cmd.Text), nil
}

func (b *Bot) answer(ctx context.Context, user *domain.User, text string) (string, error) {
	q := b.onboarding.NextUnanswered(user)
	if q == nil {
		return welcomeBackMessage, nil
	}

	state, err := b.onboarding.SubmitAnswer(ctx, user.ExternalID, q.ID, splitAnswer(q, text))
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return invalidAnswerMessage(ve.Reason) + b.questionText(q), nil
		}
		return "", err
	}
	if state.Completed {
		// the completion notifier sends the capabilities overview
		return "", nil
	}
	return b.nextQuestion(state.User), nil
}

func splitAnswer(q *domain.Question, text string) []string {
	text = strings.TrimSpace(text)
	if !q.Required && text == "-" {
		return nil
	}
	if q.Kind == domain.InputMultipleChoice {
		return strings.Split(text, ",")
	}
	return []string{text}
}

func (b *Bot) nextQuestion(user *domain.User) string {
	q := b.onboarding.NextUnanswered(user)
	if q == nil {
		return welcomeBackMessage
	}
	return b.questionText(q)
}

func (b *Bot) questionText(q *domain.Question) string {
	questions := b.onboarding.Questions()
	position := 1
	for i := range questions {
		if questions[i].ID == q.ID {
			position = i + 1
			break
		}
	}
	return questionMessage(q, position, len(questions))
}
