// Package loom is the orchestration core for autonomous code-editing agents.
// An agent is a durable, named unit of work bound to one project root. It
// holds a conversation with a language model, invokes tools that read and
// mutate files inside the project boundary, and progresses through a
// lifecycle state machine until a human accepts or rejects its changes.
package loom

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a new unique identifier for a session, message, lock or
// snapshot record.
func NewID() string {
	return uuid.NewString()
}

// Session is one unit of autonomous agent work bound to a project root.
// ProjectPath is immutable after creation; every file operation performed by
// the session must resolve within it.
type Session struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Status        Status         `json:"status"`
	ProjectPath   string         `json:"project_path"`
	ProjectName   string         `json:"project_name,omitempty"`
	WorkspaceRoot string         `json:"workspace_root,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Progress summarizes the progress log of a session.
type Progress struct {
	CurrentStep    string `json:"current_step,omitempty"`
	TotalSteps     int    `json:"total_steps"`
	CompletedSteps int    `json:"completed_steps"`
}

// SessionSummary is a Session plus derived progress counters, as returned by
// listing operations.
type SessionSummary struct {
	Session
	Progress Progress `json:"progress"`
}

// ProjectSummary aggregates the sessions recorded for one project root.
type ProjectSummary struct {
	ProjectPath   string    `json:"project_path"`
	ProjectName   string    `json:"project_name,omitempty"`
	AgentCount    int       `json:"agent_count"`
	LastActivity  time.Time `json:"last_activity"`
	RunningAgents []string  `json:"running_agents,omitempty"`
}
