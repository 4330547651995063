package loom

import (
	"encoding/json"
	"time"
)

// Role indicates who authored a message in a session's conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a known message role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is one record in a session's conversation. Messages for a session
// are totally ordered by (StepIndex, CreatedAt). Tool-call and tool-result
// payloads are variable-shape and stored as raw JSON; typed deserialization
// happens only at the tool dispatch boundary.
type Message struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCall   json.RawMessage `json:"tool_call,omitempty"`
	ToolResult json.RawMessage `json:"tool_result,omitempty"`
	StepIndex  int             `json:"step_index"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ProgressStatus is the status of one progress log entry.
type ProgressStatus string

const (
	ProgressPending   ProgressStatus = "pending"
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressEntry is an append-only audit record describing one step of agent
// work. Entries are never mutated after creation.
type ProgressEntry struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Step      string         `json:"step"`
	Status    ProgressStatus `json:"status"`
	Details   string         `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
