// Package advisor produces consultation replies from a chat completion model.
package advisor

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	// FallbackReply is sent when the model is unconfigured, slow or failing.
	FallbackReply = "I'm ready to help you build high-ticket offers. Let me know what skill or expertise you'd like to monetize."

	unconfiguredReply = "AI consultation requires OpenAI configuration. Contact support."

	systemPrompt = `You are a no-nonsense business strategist who gets straight to the point.

Your expertise:
- High-ticket offer creation and positioning
- Skill monetization and business strategy
- Market analysis and client acquisition
- Execution roadmaps and implementation

Your communication style:
- Direct, actionable advice without fluff
- Build on what users specifically share
- Ask targeted questions to uncover opportunity
- Provide frameworks and concrete next steps

Goal: help users transform their existing skills into recurring monthly revenue streams.`
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      logrus.FieldLogger
}

// Consultant answers free-text questions using the user's profile context.
type Consultant struct {
	client *openai.Client
	cfg    Config
}

func New(cfg Config) *Consultant {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1200
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	c := &Consultant{cfg: cfg}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		c.client = openai.NewClientWithConfig(oc)
	}
	return c
}

// Consult never fails: errors are logged and replaced by a static reply.
func (c *Consultant) Consult(ctx context.Context, profileContext, message string) string {
	if c.client == nil {
		return unconfiguredReply
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	system := systemPrompt
	if profileContext != "" {
		system += "\n\n" + profileContext
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		entry := c.cfg.Logger.WithError(err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			entry = entry.WithField("status", apiErr.HTTPStatusCode)
		}
		entry.Error("chat completion failed")
		return FallbackReply
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.cfg.Logger.Warn("chat completion returned no content")
		return FallbackReply
	}
	return resp.Choices[0].Message.Content
}
