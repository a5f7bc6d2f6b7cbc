// Package main provides the stop hook: when the assistant finishes a turn
// it queues a summarization checkpoint on the worker.
package main

import (
	"github.com/enzo-wego/claude-mem/pkg/hooks"
)

// Input is the hook payload for stop events.
type Input struct {
	hooks.BaseInput
	StopHookActive       bool   `json:"stop_hook_active"`
	LastAssistantMessage string `json:"last_assistant_message"`
}

func main() {
	hooks.RunHook("Stop", handleStop)
}

func handleStop(ctx *hooks.HookContext, input *Input) (string, error) {
	// Re-entrant stop events would loop: the summarize turn itself ends
	// with a stop.
	if input.StopHookActive {
		return "", nil
	}

	err := hooks.PostJSON(ctx.Port, "/api/sessions/summarize", map[string]interface{}{
		"content_session_id":     ctx.SessionID,
		"last_assistant_message": input.LastAssistantMessage,
	}, nil)
	return "", err
}
