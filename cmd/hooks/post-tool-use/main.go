// Package main provides the post-tool-use hook: it forwards each tool call
// to the worker's capture queue.
package main

import (
	"encoding/json"

	"github.com/enzo-wego/claude-mem/pkg/hooks"
)

// Input is the hook payload for tool use events.
type Input struct {
	hooks.BaseInput
	ToolName     string      `json:"tool_name"`
	ToolInput    interface{} `json:"tool_input"`
	ToolResponse interface{} `json:"tool_response"`
	ToolUseID    string      `json:"tool_use_id"`
}

func main() {
	hooks.RunHook("PostToolUse", handlePostToolUse)
}

func handlePostToolUse(ctx *hooks.HookContext, input *Input) (string, error) {
	err := hooks.PostJSON(ctx.Port, "/api/sessions/observations", map[string]interface{}{
		"content_session_id": ctx.SessionID,
		"tool_name":          input.ToolName,
		"tool_input":         asString(input.ToolInput),
		"tool_output":        asString(input.ToolResponse),
		"cwd":                ctx.CWD,
	}, nil)
	return "", err
}

// asString passes strings through and JSON-encodes structured payloads;
// the worker stores the payload opaquely either way.
func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
