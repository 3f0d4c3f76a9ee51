package chatbot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/auth"
	"paygate/internal/domain"
	"paygate/internal/repository"
	"paygate/internal/repository/sqlite"
	"paygate/internal/service"
)

type sentMessage struct {
	chatID int64
	text   string
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingMessenger) Send(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (r *recordingMessenger) last() sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sentMessage{}
	}
	return r.sent[len(r.sent)-1]
}

type stubConsultant struct {
	context string
	message string
}

func (s *stubConsultant) Consult(_ context.Context, profileContext, message string) string {
	s.context = profileContext
	s.message = message
	return "advice for " + message
}

type botFixture struct {
	store      repository.Store
	bot        *Bot
	messenger  *recordingMessenger
	consultant *stubConsultant
	completed  []*domain.User
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(context.Background(), db, nil))

	logger, _ := test.NewNullLogger()
	creds, err := auth.NewManager("", true)
	require.NoError(t, err)

	f := &botFixture{
		store:      sqlite.NewStore(db),
		messenger:  &recordingMessenger{},
		consultant: &stubConsultant{},
	}
	users := service.NewUserService(f.store, creds, logger)
	onboarding := service.NewOnboardingService(f.store, service.OnboardingConfig{
		Logger:     logger,
		OnComplete: func(_ context.Context, u *domain.User) { f.completed = append(f.completed, u) },
	})
	f.bot = NewBot(users, onboarding, f.consultant, f.messenger, Config{
		PurchaseURL: "https://pay.example.com",
		Logger:      logger,
	})
	return f
}

func (f *botFixture) say(t *testing.T, text string) string {
	t.Helper()
	require.NoError(t, f.bot.Handle(context.Background(), Incoming{ChatID: 42, UserID: 42, Text: text}))
	return f.messenger.last().text
}

func TestBot_AccessRequired(t *testing.T) {
	f := newBotFixture(t)

	reply := f.say(t, "/start")
	assert.Contains(t, reply, "Access Required")
	assert.Contains(t, reply, "https://pay.example.com")

	require.NoError(t, f.store.Users().Create(context.Background(), &domain.User{ExternalID: "tg:42", Tier: domain.TierNone}))
	assert.Contains(t, f.say(t, "hello"), "Access Required")

	assert.Contains(t, f.say(t, "/help"), "/progress")
}

func TestBot_OnboardingOverChat(t *testing.T) {
	f := newBotFixture(t)
	require.NoError(t, f.store.Users().Create(context.Background(), &domain.User{ExternalID: "tg:42", Tier: domain.TierLifetime}))

	reply := f.say(t, "/start")
	assert.Contains(t, reply, "Question 1/12")
	assert.Contains(t, reply, "full name")

	reply = f.say(t, "A")
	assert.True(t, strings.HasPrefix(reply, "⚠️"), reply)
	assert.Contains(t, reply, "Question 1/12")

	assert.Contains(t, f.say(t, "Ada Lovelace"), "Question 2/12")
	assert.Contains(t, f.say(t, "ada@example.com"), "Question 3/12")

	reply = f.say(t, "-")
	assert.Contains(t, reply, "Question 4/12")
	assert.Contains(t, reply, "1. £0 - £1,000")

	for _, answer := range []string{"2", "2", "1", "3", "2", "4", "1"} {
		f.say(t, answer)
	}
	reply = f.messenger.last().text
	assert.Contains(t, reply, "Question 11/12")
	assert.Contains(t, reply, "separated by commas")

	assert.Contains(t, f.say(t, "2, 3"), "Question 12/12")
	assert.Contains(t, f.say(t, "/progress"), "91%")

	before := len(f.messenger.sent)
	require.NoError(t, f.bot.Handle(context.Background(), Incoming{ChatID: 42, UserID: 42, Text: "4"}))
	assert.Len(t, f.messenger.sent, before, "completion reply comes from the notifier")
	require.Len(t, f.completed, 1)

	user, err := f.store.Users().GetByExternalID(context.Background(), "tg:42")
	require.NoError(t, err)
	assert.True(t, user.OnboardingCompleted)
	assert.Equal(t, []string{"Sales", "Technical/Programming"}, user.ProfileSummary.Skills)

	assert.Equal(t, "advice for how do I price?", f.say(t, "how do I price?"))
	assert.Contains(t, f.consultant.context, "- Name: Ada Lovelace")

	assert.Contains(t, f.say(t, "/start"), "Welcome back")
	assert.Contains(t, f.say(t, "/nope"), "Unknown command")
}

func TestIncomingFromUpdate(t *testing.T) {
	in, ok := IncomingFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7, UserName: "ada"},
		Chat: &tgbotapi.Chat{ID: 9},
		Text: "/start",
	}})
	require.True(t, ok)
	assert.Equal(t, Incoming{ChatID: 9, UserID: 7, Username: "ada", Text: "/start"}, in)

	_, ok = IncomingFromUpdate(tgbotapi.Update{})
	assert.False(t, ok)
	_, ok = IncomingFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}}})
	assert.False(t, ok)
}
