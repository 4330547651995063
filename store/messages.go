package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tessellate-ai/loom"
)

// AddMessage appends a message to a session's conversation.
func (s *Store) AddMessage(ctx context.Context, msg *loom.Message) error {
	if msg.ID == "" {
		msg.ID = loom.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
		(id, session_id, role, content, tool_call_id, tool_call, tool_result, step_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		nullableString(msg.ToolCallID),
		nullableBytes(msg.ToolCall),
		nullableBytes(msg.ToolResult),
		msg.StepIndex,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessages returns a session's messages ordered by (step_index,
// created_at). When limit > 0, the most recent limit messages are returned,
// still in ascending order.
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]*loom.Message, error) {
	query := `
		SELECT id, session_id, role, content, tool_call_id, tool_call, tool_result, step_index, created_at
		FROM messages WHERE session_id = ?
		ORDER BY step_index ASC, created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*loom.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// UpdateMessageResult attaches a tool result payload to an existing
// tool-call message. This is the only mutation permitted on messages.
func (s *Store) UpdateMessageResult(ctx context.Context, messageID string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET tool_result = ? WHERE id = ?",
		nullableBytes(result), messageID)
	if err != nil {
		return fmt.Errorf("failed to update message result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loom.ErrNotFound
	}
	return nil
}

// FindMessageByToolCallID returns the tool-call message carrying the given
// tool call id, or loom.ErrNotFound.
func (s *Store) FindMessageByToolCallID(ctx context.Context, toolCallID string) (*loom.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, role, content, tool_call_id, tool_call, tool_result, step_index, created_at
		FROM messages WHERE tool_call_id = ?
	`, toolCallID)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, loom.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return msg, nil
}

func scanMessage(row rowScanner) (*loom.Message, error) {
	msg := &loom.Message{}
	var role string
	var toolCallID, toolCall, toolResult sql.NullString
	err := row.Scan(
		&msg.ID,
		&msg.SessionID,
		&role,
		&msg.Content,
		&toolCallID,
		&toolCall,
		&toolResult,
		&msg.StepIndex,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Role = loom.Role(role)
	if toolCallID.Valid {
		msg.ToolCallID = toolCallID.String
	}
	if toolCall.Valid {
		msg.ToolCall = json.RawMessage(toolCall.String)
	}
	if toolResult.Valid {
		msg.ToolResult = json.RawMessage(toolResult.String)
	}
	return msg, nil
}

// AddProgress appends an entry to a session's progress log.
func (s *Store) AddProgress(ctx context.Context, entry *loom.ProgressEntry) error {
	if entry.ID == "" {
		entry.ID = loom.NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress (id, session_id, step, status, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.SessionID,
		entry.Step,
		string(entry.Status),
		nullableString(entry.Details),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert progress entry: %w", err)
	}
	return nil
}

// GetProgress returns a session's progress log in insertion order.
func (s *Store) GetProgress(ctx context.Context, sessionID string) ([]*loom.ProgressEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, step, status, details, created_at
		FROM progress WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	var entries []*loom.ProgressEntry
	for rows.Next() {
		entry := &loom.ProgressEntry{}
		var status string
		var details sql.NullString
		err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Step, &status, &details, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress entry: %w", err)
		}
		entry.Status = loom.ProgressStatus(status)
		if details.Valid {
			entry.Details = details.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

// ProgressSummary derives the progress counters reported in session
// summaries.
func (s *Store) ProgressSummary(ctx context.Context, sessionID string) (loom.Progress, error) {
	var summary loom.Progress
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM progress WHERE session_id = ?
	`, sessionID).Scan(&summary.TotalSteps, &summary.CompletedSteps)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize progress: %w", err)
	}
	var current sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT step FROM progress
		WHERE session_id = ? AND status = 'running'
		ORDER BY created_at DESC LIMIT 1
	`, sessionID).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return summary, fmt.Errorf("failed to find current step: %w", err)
	}
	if current.Valid {
		summary.CurrentStep = current.String
	}
	return summary, nil
}
