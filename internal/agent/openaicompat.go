package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/enzo-wego/claude-mem/internal/config"
)

// OpenAICompatProvider calls any OpenAI-compatible chat completions endpoint.
// Both fallback providers (Gemini's OpenAI-compat surface and OpenRouter)
// speak this protocol, so one implementation covers both.
type OpenAICompatProvider struct {
	name   config.ProviderName
	client openai.Client
	model  string
}

// NewOpenAICompatProvider builds a REST fallback provider from its settings.
// A missing API key is an ErrUnavailable so the chain moves on.
func NewOpenAICompatProvider(name config.ProviderName, settings config.ProviderSettings) (*OpenAICompatProvider, error) {
	apiKey := os.Getenv(settings.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrUnavailable, settings.APIKeyEnv)
	}
	if settings.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s has no base URL configured", ErrUnavailable, name)
	}
	return &OpenAICompatProvider{
		name: name,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(settings.BaseURL),
		),
		model: settings.Model,
	}, nil
}

// Name implements Provider.
func (p *OpenAICompatProvider) Name() config.ProviderName {
	return p.name
}

// Generate implements Provider.
func (p *OpenAICompatProvider) Generate(ctx context.Context, conv Conversation) (*Result, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(conv.Turns)+1)
	if conv.System != "" {
		messages = append(messages, openai.SystemMessage(conv.System))
	}
	for _, turn := range conv.Turns {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.model),
		Messages:  messages,
		MaxTokens: openai.Int(maxOutputTokens),
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Provider: p.name,
			Err:      errors.New("response contained no choices"),
		}
	}

	return &Result{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Provider:     p.name,
	}, nil
}

func (p *OpenAICompatProvider) wrapError(err error) error {
	pe := &ProviderError{Provider: p.name, Err: err}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		pe.Status = apierr.StatusCode
		pe.RetryAfter = retryAfterHint(apierr.Response)
	}
	return pe
}
