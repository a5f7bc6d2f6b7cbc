// Package models contains domain models for claude-mem.
package models

// MessageKind distinguishes the two capture paths.
type MessageKind string

const (
	MessageKindObservation MessageKind = "observation"
	MessageKindSummarize   MessageKind = "summarize"
)

// MessageStatus is the durable state of a queued capture request.
type MessageStatus string

const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusProcessed  MessageStatus = "processed"
	MessageStatusFailed     MessageStatus = "failed"
)

// PendingMessage is a queued unit of capture work awaiting extraction.
//
// Observation messages carry the raw tool activity; summarize messages carry
// the last assistant message. A claimed message stays in the table marked
// processing until the extraction result is committed, so a crash between
// claim and commit is recoverable on restart.
type PendingMessage struct {
	ID                   int64         `db:"id" json:"id"`
	ContentSessionID     string        `db:"content_session_id" json:"content_session_id"`
	Kind                 MessageKind   `db:"kind" json:"kind"`
	Status               MessageStatus `db:"status" json:"status"`
	ToolName             string        `db:"tool_name" json:"tool_name,omitempty"`
	ToolInput            string        `db:"tool_input" json:"tool_input,omitempty"`
	ToolOutput           string        `db:"tool_output" json:"tool_output,omitempty"`
	CWD                  string        `db:"cwd" json:"cwd,omitempty"`
	LastAssistantMessage string        `db:"last_assistant_message" json:"last_assistant_message,omitempty"`
	PromptNumber         int           `db:"prompt_number" json:"prompt_number"`
	RetryCount           int           `db:"retry_count" json:"retry_count"`
	CreatedAt            string        `db:"created_at" json:"created_at"`
	CreatedAtEpoch       int64         `db:"created_at_epoch" json:"created_at_epoch"`
}

// QueueStats summarizes queue state for operational visibility.
type QueueStats struct {
	Pending    int64    `json:"pending"`
	Processing int64    `json:"processing"`
	Processed  int64    `json:"processed"`
	Failed     int64    `json:"failed"`
	Stuck      int64    `json:"stuck"`
	Sessions   []string `json:"sessions_with_pending_work"`
}
