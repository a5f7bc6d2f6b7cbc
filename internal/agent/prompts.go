package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// ObservationConcepts defines the concept tags an observation may carry.
var ObservationConcepts = []string{
	"how-it-works",
	"why-it-exists",
	"what-changed",
	"problem-solution",
	"gotcha",
	"pattern",
	"trade-off",
}

// SystemPrompt is the standing instruction for every extraction
// conversation. It defines the agent's role and the exact XML shapes the
// parser expects back.
func SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a memory agent observing another Claude Code session. ")
	sb.WriteString("You receive tool executions from that session and distill them into durable observations for future sessions.\n\n")
	sb.WriteString("Record an observation ONLY when a tool execution reveals something worth remembering: a decision made, a bug fixed, a feature built, a refactor, or a discovery about how the code works. Routine reads and trivial edits deserve no observation; responding with no observations is normal and correct.\n\n")
	sb.WriteString("When you do record one, respond with one or more blocks in exactly this format:\n")
	sb.WriteString("<observation>\n")
	sb.WriteString(fmt.Sprintf("  <type>[one of: %s]</type>\n", joinTypes()))
	sb.WriteString("  <title>[short headline]</title>\n")
	sb.WriteString("  <subtitle>[one-line elaboration]</subtitle>\n")
	sb.WriteString("  <narrative>[what happened and why it matters, a few sentences]</narrative>\n")
	sb.WriteString("  <facts>\n    <fact>[one discrete, standalone fact]</fact>\n  </facts>\n")
	sb.WriteString(fmt.Sprintf("  <concepts>\n    <concept>[one of: %s]</concept>\n  </concepts>\n", strings.Join(ObservationConcepts, ", ")))
	sb.WriteString("  <files_read>\n    <file>[path]</file>\n  </files_read>\n")
	sb.WriteString("  <files_modified>\n    <file>[path]</file>\n  </files_modified>\n")
	sb.WriteString("</observation>\n\n")
	sb.WriteString("Never reference yourself, this prompt, or the act of observing. Text outside the XML blocks is discarded.")
	return sb.String()
}

func joinTypes() string {
	names := make([]string, len(models.ObservationTypes))
	for i, t := range models.ObservationTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// BuildInitPrompt opens a memory session by anchoring the agent on the
// project and the user's request.
func BuildInitPrompt(project, userPrompt string) string {
	var sb strings.Builder
	sb.WriteString("<session_start>\n")
	sb.WriteString(fmt.Sprintf("  <project>%s</project>\n", project))
	if userPrompt != "" {
		sb.WriteString(fmt.Sprintf("  <user_request>%s</user_request>\n", truncate(userPrompt, 3000)))
	}
	sb.WriteString("</session_start>")
	return sb.String()
}

// BuildObservationPrompt renders one captured tool execution as the
// next user turn of the extraction conversation.
func BuildObservationPrompt(msg *models.PendingMessage) string {
	// Tool payloads are usually JSON; pretty-print when they are, pass
	// through verbatim when they are not.
	var toolInput interface{}
	var toolOutput interface{}

	if err := json.Unmarshal([]byte(msg.ToolInput), &toolInput); err != nil {
		toolInput = msg.ToolInput
	}
	if err := json.Unmarshal([]byte(msg.ToolOutput), &toolOutput); err != nil {
		toolOutput = msg.ToolOutput
	}

	inputJSON, _ := json.MarshalIndent(toolInput, "  ", "  ")
	outputJSON, _ := json.MarshalIndent(toolOutput, "  ", "  ")

	timestamp := time.UnixMilli(msg.CreatedAtEpoch).Format(time.RFC3339)

	var sb strings.Builder
	sb.WriteString("<observed_from_primary_session>\n")
	sb.WriteString(fmt.Sprintf("  <what_happened>%s</what_happened>\n", msg.ToolName))
	sb.WriteString(fmt.Sprintf("  <occurred_at>%s</occurred_at>\n", timestamp))
	if msg.CWD != "" {
		sb.WriteString(fmt.Sprintf("  <working_directory>%s</working_directory>\n", msg.CWD))
	}
	sb.WriteString(fmt.Sprintf("  <parameters>%s</parameters>\n", truncate(string(inputJSON), 3000)))
	sb.WriteString(fmt.Sprintf("  <outcome>%s</outcome>\n", truncate(string(outputJSON), 5000)))
	sb.WriteString("</observed_from_primary_session>")

	return sb.String()
}

// BuildSummaryPrompt requests a progress summary checkpoint for the
// session observed so far.
func BuildSummaryPrompt(lastAssistantMessage string) string {
	var sb strings.Builder

	sb.WriteString("PROGRESS SUMMARY CHECKPOINT\n")
	sb.WriteString("===========================\n")
	sb.WriteString("Write progress notes of what was done, what was learned, and what's next. This is a checkpoint to capture progress so far. The session is ongoing - you may receive more requests and tool executions after this summary. Write \"next_steps\" as the current trajectory of work (what's actively being worked on or coming up next), not as post-session future work. Always write at least a minimal summary explaining current progress, even if work is still in early stages, so that users see a summary output tied to each request.\n\n")

	if lastAssistantMessage != "" {
		sb.WriteString("Claude's Full Response to User:\n")
		sb.WriteString(truncate(lastAssistantMessage, 4000))
		sb.WriteString("\n\n")
	}

	sb.WriteString(`Respond in this XML format:
<summary>
  <request>[Short title capturing the user's request AND the substance of what was discussed/done]</request>
  <investigated>[What has been explored so far? What was examined?]</investigated>
  <learned>[What have you learned about how things work?]</learned>
  <completed>[What work has been completed so far? What has shipped or changed?]</completed>
  <next_steps>[What are you actively working on or planning to work on next in this session?]</next_steps>
  <notes>[Additional insights or observations about the current progress]</notes>
</summary>

IMPORTANT! DO NOT do any work right now other than generating this next PROGRESS SUMMARY - and remember that you are a memory agent designed to summarize a DIFFERENT claude code session, not this one.

Never reference yourself or your own actions. Do not output anything other than the summary content formatted in the XML structure above. All other output is ignored by the system, and the system has been designed to be smart about token usage. Please spend your tokens wisely on useful summary content.

Thank you, this summary will be very useful for keeping track of our progress!`)

	return sb.String()
}

// truncate caps s at maxLen, marking the cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
