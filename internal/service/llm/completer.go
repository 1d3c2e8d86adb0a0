package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/avdeenko/trailmate/internal/config"
	"github.com/avdeenko/trailmate/internal/model/chat"
)

// ErrQuotaExceeded marks completions rejected by the provider's rate or
// usage limits. Every other completion failure is treated as transient.
var ErrQuotaExceeded = errors.New("model quota exceeded")

// Completer is the capability a session needs from a model backend: send
// the prior transcript plus one new user message, get text back. The
// system prompt is fixed when the completer is built.
type Completer interface {
	Complete(ctx context.Context, prior []chat.Turn, userMessage string) (string, error)
}

// CompleterFactory builds a Completer bound to a credential and system
// prompt. Sessions call it lazily, and again after a profile change.
type CompleterFactory func(ctx context.Context, credential, systemPrompt string) (Completer, error)

// NewArkCompleterFactory returns a factory producing eino chains backed by
// an Ark chat model. The credential becomes the per-user API key.
func NewArkCompleterFactory(cfg config.AIConfig) CompleterFactory {
	return func(ctx context.Context, credential, systemPrompt string) (Completer, error) {
		if !cfg.Enabled() {
			return nil, fmt.Errorf("model name is not configured")
		}

		temperature := float32(cfg.Temperature)
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     cfg.BaseURL,
			Region:      cfg.Region,
			APIKey:      credential,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("create chat model: %w", err)
		}

		promptTemplate := prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		)

		chain := compose.NewChain[map[string]any, *schema.Message]()
		chain.AppendChatTemplate(promptTemplate)
		chain.AppendChatModel(chatModel)

		runnable, err := chain.Compile(ctx)
		if err != nil {
			return nil, fmt.Errorf("compile chat chain: %w", err)
		}

		return &einoCompleter{chain: runnable, systemPrompt: systemPrompt}, nil
	}
}

type einoCompleter struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
}

func (c *einoCompleter) Complete(ctx context.Context, prior []chat.Turn, userMessage string) (string, error) {
	input := map[string]any{
		"system":  c.systemPrompt,
		"history": historyMessages(prior),
		"query":   userMessage,
	}

	response, err := c.chain.Invoke(ctx, input)
	if err != nil {
		if isQuotaErr(err) {
			return "", fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("run chat chain: %w", err)
	}

	return response.Content, nil
}

// historyMessages converts recorded turns into the model's alternating
// message format, preserving order.
func historyMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

// isQuotaErr sniffs provider errors for rate/usage-limit markers. The SDK
// does not expose a stable typed error for 429 responses.
func isQuotaErr(err error) bool {
	msg := strings.ToLower(err.Error())
	markers := []string{
		"quota",
		"rate limit",
		"ratelimit",
		"resource exhausted",
		"resourceexhausted",
		"too many requests",
		"429",
	}
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
