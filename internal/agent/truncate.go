package agent

import (
	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/config"
)

// charsPerToken is the coarse estimate used when deciding whether a
// conversation fits a provider's context window. Exact tokenization differs
// per provider, so precision is not worth a tokenizer round trip here.
const charsPerToken = 4

// truncateConversation drops the oldest turns until the conversation fits
// the provider's turn and token budgets. The system prompt and the newest
// turn always survive.
func truncateConversation(conv Conversation, settings config.ProviderSettings) Conversation {
	turns := conv.Turns
	dropped := 0

	if settings.MaxTurns > 0 && len(turns) > settings.MaxTurns {
		dropped += len(turns) - settings.MaxTurns
		turns = turns[len(turns)-settings.MaxTurns:]
	}

	if settings.MaxContextTokens > 0 {
		budget := settings.MaxContextTokens - estimateTokens(conv.System)
		for len(turns) > 1 && estimateTurns(turns) > budget {
			turns = turns[1:]
			dropped++
		}
	}

	if dropped > 0 {
		log.Debug().
			Int("dropped_turns", dropped).
			Int("kept_turns", len(turns)).
			Msg("conversation truncated to fit context budget")
	}

	conv.Turns = turns
	return conv
}

func estimateTurns(turns []Turn) int {
	total := 0
	for _, turn := range turns {
		total += estimateTokens(turn.Content)
	}
	return total
}

func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/charsPerToken + 1
}
