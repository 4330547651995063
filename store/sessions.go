package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tessellate-ai/loom"
)

// CreateSession persists a new session record. Missing id and timestamps are
// filled in.
func (s *Store) CreateSession(ctx context.Context, sess *loom.Session) error {
	if sess.ID == "" {
		sess.ID = loom.NewID()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = now
	}
	if sess.Status == "" {
		sess.Status = loom.StatusIdeas
	}
	metadata, err := marshalMetadata(sess.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, name, description, status, project_path, project_name, workspace_root,
		 metadata, created_at, updated_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.Name,
		sess.Description,
		string(sess.Status),
		sess.ProjectPath,
		nullableString(sess.ProjectName),
		nullableString(sess.WorkspaceRoot),
		nullableBytes(metadata),
		sess.CreatedAt,
		sess.UpdatedAt,
		nullableTimePtr(sess.StartedAt),
		nullableTimePtr(sess.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given id, or loom.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*loom.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, project_path, project_name,
		       workspace_root, metadata, created_at, updated_at, started_at, completed_at
		FROM sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, loom.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return sess, nil
}

// SessionFilter narrows ListSessions results.
type SessionFilter struct {
	ProjectPath string
	Status      loom.Status
}

// ListSessions returns sessions newest-first, optionally filtered by project
// path and status.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]*loom.Session, error) {
	query := `
		SELECT id, name, description, status, project_path, project_name,
		       workspace_root, metadata, created_at, updated_at, started_at, completed_at
		FROM sessions
	`
	var conditions []string
	var args []any
	if filter.ProjectPath != "" {
		conditions = append(conditions, "project_path = ?")
		args = append(args, filter.ProjectPath)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*loom.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return sessions, nil
}

// StatusUpdate carries the optional fields touched alongside a status write.
// Metadata keys are merged into the session's existing metadata blob.
type StatusUpdate struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	Metadata    map[string]any
}

// UpdateSessionStatus sets the session status and any provided timestamps in
// a single transaction, merging metadata. Returns loom.ErrNotFound for an
// unknown id. Status validity is enforced by the session manager; the store
// records what it is told.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status loom.Status, upd StatusUpdate) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rawMetadata sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT metadata FROM sessions WHERE id = ?", id).Scan(&rawMetadata)
	if err == sql.ErrNoRows {
		return loom.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read session metadata: %w", err)
	}

	metadata := map[string]any{}
	if rawMetadata.Valid && rawMetadata.String != "" {
		if err := json.Unmarshal([]byte(rawMetadata.String), &metadata); err != nil {
			return fmt.Errorf("failed to unmarshal session metadata: %w", err)
		}
	}
	for k, v := range upd.Metadata {
		metadata[k] = v
	}
	merged, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}

	query := "UPDATE sessions SET status = ?, updated_at = ?, metadata = ?"
	args := []any{string(status), time.Now().UTC(), nullableBytes(merged)}
	if upd.StartedAt != nil {
		query += ", started_at = ?"
		args = append(args, *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		query += ", completed_at = ?"
		args = append(args, *upd.CompletedAt)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

// TouchSession bumps the session's updated_at timestamp.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loom.ErrNotFound
	}
	return nil
}

// DeleteSession removes the session and, via foreign-key cascade, all of its
// messages, progress entries, locks and snapshots.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loom.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*loom.Session, error) {
	sess := &loom.Session{}
	var status string
	var projectName, workspaceRoot, metadata sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&sess.ID,
		&sess.Name,
		&sess.Description,
		&status,
		&sess.ProjectPath,
		&projectName,
		&workspaceRoot,
		&metadata,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.Status = loom.Status(status)
	if projectName.Valid {
		sess.ProjectName = projectName.String
	}
	if workspaceRoot.Valid {
		sess.WorkspaceRoot = workspaceRoot.String
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &sess.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		sess.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return sess, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}
