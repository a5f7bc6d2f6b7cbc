package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/enzo-wego/claude-mem/internal/config"
)

// AnthropicProvider calls the Anthropic Messages API through the official SDK.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider builds the primary provider. A missing API key is an
// ErrUnavailable so the chain can skip straight to a fallback.
func NewAnthropicProvider(settings config.ProviderSettings) (*AnthropicProvider, error) {
	apiKey := os.Getenv(settings.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrUnavailable, settings.APIKeyEnv)
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  settings.Model,
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() config.ProviderName {
	return config.ProviderAnthropic
}

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, conv Conversation) (*Result, error) {
	messages := make([]anthropic.MessageParam, 0, len(conv.Turns))
	for _, turn := range conv.Turns {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxOutputTokens,
		Messages:  messages,
	}
	if conv.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: conv.System},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Result{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Provider:     config.ProviderAnthropic,
	}, nil
}

func (p *AnthropicProvider) wrapError(err error) error {
	pe := &ProviderError{Provider: config.ProviderAnthropic, Err: err}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		pe.Status = apierr.StatusCode
		pe.RetryAfter = retryAfterHint(apierr.Response)
	}
	return pe
}
