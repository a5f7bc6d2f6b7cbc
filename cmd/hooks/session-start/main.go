// Package main provides the session-start hook: it registers the session
// with the worker and injects recent project memory into the new session.
package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/enzo-wego/claude-mem/pkg/hooks"
)

// Input is the hook payload for session start events.
type Input struct {
	hooks.BaseInput
	Source string `json:"source"` // "startup", "resume", "clear", "compact"
}

// searchItem mirrors the worker's search result shape, loosely typed so
// the hook keeps working across worker versions.
type searchItem struct {
	DocType     string                 `json:"doc_type"`
	Observation map[string]interface{} `json:"observation"`
	Summary     map[string]interface{} `json:"summary"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

func main() {
	hooks.RunHook("SessionStart", handleSessionStart)
}

func handleSessionStart(ctx *hooks.HookContext, input *Input) (string, error) {
	// Register the session so later enqueues find a session row.
	err := hooks.PostJSON(ctx.Port, "/api/sessions/init", map[string]interface{}{
		"content_session_id": ctx.SessionID,
		"project":            ctx.Project,
	}, nil)
	if err != nil {
		return "", err
	}

	// Context injection is best-effort; a fresh project has nothing yet.
	var res searchResponse
	endpoint := "/api/search?project=" + url.QueryEscape(ctx.Project)
	if err := hooks.GetJSON(ctx.Port, endpoint, &res); err != nil {
		fmt.Fprintf(os.Stderr, "[claude-mem] Warning: context fetch failed: %v\n", err)
		return "", nil
	}
	if len(res.Items) == 0 {
		return "", nil
	}

	fmt.Fprintf(os.Stderr, "[claude-mem] Injecting %d memories from project history\n", len(res.Items))
	return buildContext(res.Items), nil
}

// buildContext renders search hits as the memory block the assistant sees
// at session start.
func buildContext(items []searchItem) string {
	var b strings.Builder
	b.WriteString("<claude-mem-context>\n")
	fmt.Fprintf(&b, "# Project Memory (%d entries)\n", len(items))
	b.WriteString("Use this knowledge to answer questions without re-exploring the codebase.\n\n")

	n := 0
	for _, item := range items {
		switch item.DocType {
		case "observation":
			n++
			title := getString(item.Observation, "title")
			obsType := strings.ToUpper(getString(item.Observation, "type"))
			fmt.Fprintf(&b, "## %d. [%s] %s\n", n, obsType, title)
			if narrative := getString(item.Observation, "narrative"); narrative != "" {
				b.WriteString(narrative + "\n")
			}
			if facts, ok := item.Observation["facts"].([]interface{}); ok && len(facts) > 0 {
				b.WriteString("Key facts:\n")
				for _, f := range facts {
					if fact, ok := f.(string); ok && fact != "" {
						fmt.Fprintf(&b, "- %s\n", fact)
					}
				}
			}
			b.WriteString("\n")
		case "summary":
			n++
			fmt.Fprintf(&b, "## %d. [SESSION SUMMARY]\n", n)
			for _, field := range []string{"request", "completed", "learned", "next_steps"} {
				if v := getString(item.Summary, field); v != "" {
					fmt.Fprintf(&b, "%s: %s\n", field, v)
				}
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("</claude-mem-context>\n")
	return b.String()
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
