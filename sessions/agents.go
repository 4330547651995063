package sessions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/engine"
	"github.com/tessellate-ai/loom/events"
	"github.com/tessellate-ai/loom/journal"
	"github.com/tessellate-ai/loom/store"
)

// CreateAgentInput are the attributes of a new agent session.
type CreateAgentInput struct {
	Name          string
	Description   string
	ProjectPath   string
	ProjectName   string
	WorkspaceRoot string

	// InitialPrompt, when set, is stored as the first user message and the
	// session starts in todo instead of ideas.
	InitialPrompt string
}

// CreateAgent persists a new session. The project path is canonicalised at
// creation and immutable afterwards.
func (m *Manager) CreateAgent(ctx context.Context, input CreateAgentInput) (*loom.Session, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if input.ProjectPath == "" {
		return nil, fmt.Errorf("project path is required")
	}
	projectPath, err := canonicalPath(input.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("invalid project path: %w", err)
	}
	sess := &loom.Session{
		Name:          input.Name,
		Description:   input.Description,
		Status:        loom.StatusIdeas,
		ProjectPath:   projectPath,
		ProjectName:   input.ProjectName,
		WorkspaceRoot: input.WorkspaceRoot,
	}
	if input.InitialPrompt != "" {
		sess.Status = loom.StatusTodo
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if input.InitialPrompt != "" {
		err := m.store.AddMessage(ctx, &loom.Message{
			SessionID: sess.ID,
			Role:      loom.RoleUser,
			Content:   input.InitialPrompt,
			StepIndex: 0,
		})
		if err != nil {
			return nil, err
		}
	}
	m.publish(events.TopicAgentCreated, sess.ID, map[string]any{
		"name":         sess.Name,
		"project_path": sess.ProjectPath,
	})
	return sess, nil
}

// ListAgents returns session summaries newest-first, optionally filtered by
// project path and status. Each summary carries derived progress counters.
func (m *Manager) ListAgents(ctx context.Context, projectPath string, status loom.Status) ([]*loom.SessionSummary, error) {
	if projectPath != "" {
		canonical, err := canonicalPath(projectPath)
		if err != nil {
			return nil, fmt.Errorf("invalid project path: %w", err)
		}
		projectPath = canonical
	}
	list, err := m.store.ListSessions(ctx, store.SessionFilter{ProjectPath: projectPath, Status: status})
	if err != nil {
		return nil, err
	}
	summaries := make([]*loom.SessionSummary, 0, len(list))
	for _, sess := range list {
		progress, err := m.store.ProgressSummary(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &loom.SessionSummary{Session: *sess, Progress: progress})
	}
	return summaries, nil
}

// GetAgent returns the session with the given id, or loom.ErrNotFound.
func (m *Manager) GetAgent(ctx context.Context, id string) (*loom.Session, error) {
	return m.store.GetSession(ctx, id)
}

// DeleteAgent stops the session's execution if running and removes it with
// all child records.
func (m *Manager) DeleteAgent(ctx context.Context, id string) error {
	if m.engine.IsRunning(id) {
		if err := m.engine.Stop(ctx, id); err != nil && err != loom.ErrNotRunning {
			return err
		}
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.publish(events.TopicAgentDeleted, id, nil)
	return nil
}

// StartAgentOptions tune one execution.
type StartAgentOptions struct {
	MaxSteps int

	// AutoRetry and RetryAttempts are accepted for forward compatibility
	// with callers that request retries; the core does not retry and a
	// failed run always lands in need_clarification.
	AutoRetry     bool
	RetryAttempts int
}

// StartAgent transitions the session to doing and schedules its execution.
func (m *Manager) StartAgent(ctx context.Context, id string, opts StartAgentOptions) error {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return err
	}
	return m.engine.Start(ctx, id, engine.StartOptions{MaxSteps: opts.MaxSteps})
}

// StopAgent aborts a running execution. The session lands in
// need_clarification with the abort recorded in its metadata.
func (m *Manager) StopAgent(ctx context.Context, id, reason string) error {
	if reason != "" {
		m.logger.Info("stopping agent", "session_id", id, "reason", reason)
	}
	return m.engine.Stop(ctx, id)
}

// UpdateAgentStatus applies a user-driven transition. Moving review to
// accepted applies the snapshot journal; moving review to rejected reverts
// it. The journal operation runs first so a failed apply leaves the session
// in review.
func (m *Manager) UpdateAgentStatus(ctx context.Context, id string, status loom.Status) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := loom.ValidateTransition(sess.Status, status); err != nil {
		return err
	}
	switch status {
	case loom.StatusAccepted:
		if err := m.journal.AcceptAll(ctx, id); err != nil {
			return err
		}
	case loom.StatusRejected:
		if err := m.journal.RevertAll(ctx, id); err != nil {
			return err
		}
	}
	return m.Transition(ctx, id, status, nil)
}

// AddMessage appends a user or system message. A user message arriving while
// the session is in ideas or need_clarification moves it to todo.
func (m *Manager) AddMessage(ctx context.Context, id string, role loom.Role, content string) (*loom.Message, error) {
	if role != loom.RoleUser && role != loom.RoleSystem {
		return nil, fmt.Errorf("role must be user or system, got %q", role)
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	step, err := m.nextStepIndex(ctx, id)
	if err != nil {
		return nil, err
	}
	msg := &loom.Message{
		SessionID: id,
		Role:      role,
		Content:   content,
		StepIndex: step,
	}
	if err := m.store.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	if role == loom.RoleUser &&
		(sess.Status == loom.StatusIdeas || sess.Status == loom.StatusNeedClarification) {
		if err := m.Transition(ctx, id, loom.StatusTodo, nil); err != nil {
			return nil, err
		}
	} else if err := m.store.TouchSession(ctx, id); err != nil {
		return nil, err
	}
	m.publish(events.TopicMessageAdded, id, map[string]any{"role": string(role)})
	return msg, nil
}

// GetMessages returns the session's conversation ordered by (stepIndex,
// timestamp). When limit > 0 only the most recent limit messages are
// returned.
func (m *Manager) GetMessages(ctx context.Context, id string, limit int) ([]*loom.Message, error) {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return m.store.GetMessages(ctx, id, limit)
}

// GetProgress returns the session's progress log in insertion order.
func (m *Manager) GetProgress(ctx context.Context, id string) ([]*loom.ProgressEntry, error) {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return m.store.GetProgress(ctx, id)
}

// GetSessionDiff renders the session's pending changes as one unified diff.
func (m *Manager) GetSessionDiff(ctx context.Context, id string) (string, error) {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return "", err
	}
	snaps, err := m.journal.ListForSession(ctx, id, loom.SnapshotPending)
	if err != nil {
		return "", err
	}
	return journal.DiffAll(snaps)
}

// IsAgentRunning reports whether the session holds an execution context.
func (m *Manager) IsAgentRunning(id string) bool {
	return m.engine.IsRunning(id)
}

// GetRunningAgents returns the ids of sessions holding execution contexts.
func (m *Manager) GetRunningAgents() []string {
	return m.engine.RunningSessions()
}

func (m *Manager) nextStepIndex(ctx context.Context, id string) (int, error) {
	msgs, err := m.store.GetMessages(ctx, id, 0)
	if err != nil {
		return 0, err
	}
	step := 0
	for _, msg := range msgs {
		if msg.StepIndex >= step {
			step = msg.StepIndex + 1
		}
	}
	return step, nil
}

// canonicalPath makes the path absolute and resolves symlinks so project
// containment checks compare like with like.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The project directory may not exist yet.
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}
