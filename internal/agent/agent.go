// Package agent calls external LLM providers to distill captured tool
// activity into structured memory records. Each provider sits behind a
// rate limiter and a retry policy; providers are chained so that an
// unavailable primary falls back to the next configured one.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/config"
)

// maxOutputTokens bounds the size of a single extraction response.
const maxOutputTokens = 4096

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in an extraction conversation.
type Turn struct {
	Role    Role
	Content string
}

// Conversation is the full input to one provider call: an optional system
// prompt plus the accumulated turns of the memory session.
type Conversation struct {
	System string
	Turns  []Turn
}

// Result carries the provider's response text and token accounting.
type Result struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	Provider     config.ProviderName
}

// TotalTokens returns the combined input and output token count.
func (r *Result) TotalTokens() int64 {
	return r.InputTokens + r.OutputTokens
}

// Provider is a single backend capable of one generation call. Errors are
// returned as *ProviderError so callers can classify them.
type Provider interface {
	Name() config.ProviderName
	Generate(ctx context.Context, conv Conversation) (*Result, error)
}

// Agent wraps one provider with truncation, rate limiting, and retries.
type Agent struct {
	provider Provider
	settings config.ProviderSettings
	limiter  *rateLimiter
}

// NewAgent builds an agent around the given provider.
func NewAgent(provider Provider, settings config.ProviderSettings) *Agent {
	var limiter *rateLimiter
	if !settings.Unlimited {
		limiter = newRateLimiter(settings.RequestsPerMinute)
	}
	return &Agent{provider: provider, settings: settings, limiter: limiter}
}

// Name returns the wrapped provider's name.
func (a *Agent) Name() config.ProviderName {
	return a.provider.Name()
}

// Generate truncates the conversation to the provider's context budget and
// calls the provider, retrying transient failures with exponential backoff.
// When a provider suggests a retry delay it overrides the computed backoff.
// Exhausted retries and rejected credentials surface as ErrUnavailable so
// the caller can fall back.
func (a *Agent) Generate(ctx context.Context, conv Conversation) (*Result, error) {
	conv = truncateConversation(conv, a.settings)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.settings.InitialBackoff
	bo.MaxInterval = a.settings.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt <= a.settings.MaxRetries; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.wait(ctx); err != nil {
				return nil, err
			}
		}

		res, err := a.provider.Generate(ctx, conv)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var pe *ProviderError
		if !errors.As(err, &pe) {
			return nil, err
		}
		if pe.Unavailable() {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if !pe.Transient() {
			return nil, err
		}
		lastErr = err

		delay := bo.NextBackOff()
		if pe.RetryAfter > delay {
			delay = pe.RetryAfter
		}
		log.Warn().
			Str("provider", string(a.provider.Name())).
			Int("attempt", attempt+1).
			Int("status", pe.Status).
			Dur("delay", delay).
			Msg("provider call failed, retrying")

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s retries exhausted: %v",
		ErrUnavailable, a.provider.Name(), lastErr)
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
