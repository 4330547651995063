package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tessellate-ai/loom"
)

// ListProjectSummaries aggregates sessions by project path, newest activity
// first. RunningAgents carries the ids of sessions currently in doing.
func (s *Store) ListProjectSummaries(ctx context.Context) ([]*loom.ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_path, MAX(COALESCE(project_name, '')), COUNT(*), MAX(updated_at)
		FROM sessions
		GROUP BY project_path
		ORDER BY MAX(updated_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query project summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*loom.ProjectSummary
	for rows.Next() {
		summary := &loom.ProjectSummary{}
		if err := rows.Scan(&summary.ProjectPath, &summary.ProjectName, &summary.AgentCount, &summary.LastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan project summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, summary := range summaries {
		ids, err := s.sessionIDsByStatus(ctx, summary.ProjectPath, loom.StatusDoing)
		if err != nil {
			return nil, err
		}
		summary.RunningAgents = ids
	}
	return summaries, nil
}

func (s *Store) sessionIDsByStatus(ctx context.Context, projectPath string, status loom.Status) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM sessions WHERE project_path = ? AND status = ?",
		projectPath, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

// DeleteInactiveProjects removes every session belonging to projects whose
// latest activity is older than the given number of days. Projects with a
// session currently in doing are skipped. Returns the number of projects
// removed.
func (s *Store) DeleteInactiveProjects(ctx context.Context, days int) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT project_path FROM sessions
		GROUP BY project_path
		HAVING MAX(updated_at) < ?
		   AND SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) = 0
	`, cutoff, string(loom.StatusDoing))
	if err != nil {
		return 0, fmt.Errorf("failed to find inactive projects: %w", err)
	}
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan project path: %w", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	for _, path := range paths {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE project_path = ?", path); err != nil {
			return 0, fmt.Errorf("failed to delete project sessions: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit project cleanup: %w", err)
	}
	return len(paths), nil
}

// CountSessions returns the total number of sessions, optionally filtered by
// project path.
func (s *Store) CountSessions(ctx context.Context, projectPath string) (int, error) {
	query := "SELECT COUNT(*) FROM sessions"
	var args []any
	if projectPath != "" {
		query += " WHERE project_path = ?"
		args = append(args, projectPath)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
