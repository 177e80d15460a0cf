package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/exampractice/internal/llm/prompts"
	"github.com/pavelanni/exampractice/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultMaxTurns is how many trailing conversation turns are forwarded.
const DefaultMaxTurns = 12

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-5-mini"

var (
	// ErrNotConfigured is returned when no provider API key is set.
	ErrNotConfigured = errors.New("AI provider is not configured: missing API key")
	// ErrNoUserTurn is returned when the conversation has no user message.
	ErrNoUserTurn = errors.New("no user message")
	// ErrNoChoices is returned when the provider answers without any choice.
	ErrNoChoices = errors.New("LLM returned no choices")
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api      *openai.Client
	model    string
	variant  prompts.Variant
	maxTurns int
}

// New creates a new LLM client. An empty apiKey yields a client whose
// calls fail with ErrNotConfigured.
func New(baseURL, apiKey, modelName string, variant prompts.Variant, maxTurns int) *Client {
	c := &Client{model: modelName, variant: variant, maxTurns: maxTurns}
	if c.model == "" {
		c.model = DefaultModel
	}
	if !prompts.IsValidVariant(string(c.variant)) {
		c.variant = prompts.VariantEnglish
	}
	if c.maxTurns <= 0 {
		c.maxTurns = DefaultMaxTurns
	}
	if apiKey == "" {
		return c
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	c.api = openai.NewClientWithConfig(config)
	return c
}

// Configured reports whether the client has provider credentials.
func (c *Client) Configured() bool {
	return c.api != nil
}

// Tutor forwards the trailing part of a conversation, behind the tutor
// instruction, and returns the generated text verbatim. subject may be empty.
func (c *Client) Tutor(ctx context.Context, turns []model.ChatTurn, subject string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	window, err := trailingTurns(turns, c.maxTurns)
	if err != nil {
		return "", err
	}

	system, err := prompts.BuildTutorPrompt(c.variant, prompts.TutorData{Subject: subject})
	if err != nil {
		return "", fmt.Errorf("build tutor prompt: %w", err)
	}
	chatMsgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, t := range window {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if t.Role == model.ChatUser {
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: prompts.WrapStudentMessage(t.Text),
			})
			continue
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: prompts.Sanitize(t.Text),
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMsgs,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	text := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "turns", len(window), "chars", len(text))
	return text, nil
}

// trailingTurns returns the last limit turns, widened if needed so that it
// always starts at or before the latest user turn.
func trailingTurns(turns []model.ChatTurn, limit int) ([]model.ChatTurn, error) {
	lastUser := -1
	for i, t := range turns {
		if t.Role == model.ChatUser && strings.TrimSpace(t.Text) != "" {
			lastUser = i
		}
	}
	if lastUser < 0 {
		return nil, ErrNoUserTurn
	}
	start := len(turns) - limit
	if start < 0 {
		start = 0
	}
	if start > lastUser {
		start = lastUser
	}
	return turns[start:], nil
}
