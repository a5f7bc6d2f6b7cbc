package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/config"
)

// Chain tries providers in configured order. Fallback is one-directional:
// once a provider proves unavailable the chain moves forward and never
// returns to it within the same call. Cancellation is always propagated,
// never treated as a reason to fall back.
type Chain struct {
	agents []*Agent
}

// NewChain builds the provider chain from configuration. Providers that
// cannot be constructed (typically a missing API key) are logged and left
// out; at least one must survive.
func NewChain(cfg *config.Config) (*Chain, error) {
	agents := make([]*Agent, 0, len(cfg.ProviderChain))
	for _, name := range cfg.ProviderChain {
		settings, ok := cfg.Providers[name]
		if !ok {
			return nil, fmt.Errorf("provider %s is in the chain but has no settings", name)
		}

		var (
			provider Provider
			err      error
		)
		switch name {
		case config.ProviderAnthropic:
			provider, err = NewAnthropicProvider(settings)
		default:
			provider, err = NewOpenAICompatProvider(name, settings)
		}
		if err != nil {
			log.Warn().Err(err).Str("provider", string(name)).
				Msg("provider skipped, not configured")
			continue
		}
		agents = append(agents, NewAgent(provider, settings))
	}

	if len(agents) == 0 {
		return nil, errors.New("no extraction provider is configured")
	}
	return &Chain{agents: agents}, nil
}

// NewChainFromAgents builds a chain directly from agents, for tests.
func NewChainFromAgents(agents ...*Agent) *Chain {
	return &Chain{agents: agents}
}

// Providers lists the names of the usable providers in chain order.
func (c *Chain) Providers() []config.ProviderName {
	names := make([]config.ProviderName, len(c.agents))
	for i, a := range c.agents {
		names[i] = a.Name()
	}
	return names
}

// Generate runs the conversation through the first available provider.
func (c *Chain) Generate(ctx context.Context, conv Conversation) (*Result, error) {
	var lastErr error
	for i, a := range c.agents {
		res, err := a.Generate(ctx, conv)
		if err == nil {
			if i > 0 {
				log.Info().Str("provider", string(a.Name())).
					Msg("fallback provider served the request")
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		log.Warn().Err(err).Str("provider", string(a.Name())).
			Msg("provider unavailable, falling back")
		lastErr = err
	}
	return nil, fmt.Errorf("all providers exhausted: %w", lastErr)
}
