package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tessellate-ai/loom"
)

// AddSnapshot persists a new snapshot record.
func (s *Store) AddSnapshot(ctx context.Context, snap *loom.Snapshot) error {
	if snap.ID == "" {
		snap.ID = loom.NewID()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.Status == "" {
		snap.Status = loom.SnapshotPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, session_id, file_path, operation, before_content, after_content, status, step_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID,
		snap.SessionID,
		snap.FilePath,
		string(snap.Operation),
		nullableStringPtr(snap.Before),
		nullableStringPtr(snap.After),
		string(snap.Status),
		snap.StepIndex,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot with the given id, or loom.ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*loom.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, file_path, operation, before_content, after_content, status, step_index, created_at
		FROM snapshots WHERE id = ?
	`, id)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, loom.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns a session's snapshots in capture order, optionally
// filtered by status. The rowid tie-break keeps multiple mutations captured
// within one step in the order they happened.
func (s *Store) ListSnapshots(ctx context.Context, sessionID string, status loom.SnapshotStatus) ([]*loom.Snapshot, error) {
	query := `
		SELECT id, session_id, file_path, operation, before_content, after_content, status, step_index, created_at
		FROM snapshots WHERE session_id = ?
	`
	args := []any{sessionID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY step_index ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*loom.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return snapshots, nil
}

// SetSnapshotAfter records the bytes written by the mutation the snapshot
// journals.
func (s *Store) SetSnapshotAfter(ctx context.Context, id string, after *string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE snapshots SET after_content = ? WHERE id = ?", nullableStringPtr(after), id)
	if err != nil {
		return fmt.Errorf("failed to set snapshot after-content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loom.ErrNotFound
	}
	return nil
}

// BulkSetSnapshotStatus moves every snapshot of a session from one status to
// another and returns the number of rows changed.
func (s *Store) BulkSetSnapshotStatus(ctx context.Context, sessionID string, from, to loom.SnapshotStatus) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE snapshots SET status = ? WHERE session_id = ? AND status = ?",
		string(to), sessionID, string(from))
	if err != nil {
		return 0, fmt.Errorf("failed to update snapshot statuses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count updated snapshots: %w", err)
	}
	return int(n), nil
}

func scanSnapshot(row rowScanner) (*loom.Snapshot, error) {
	snap := &loom.Snapshot{}
	var operation, status string
	var before, after sql.NullString
	err := row.Scan(
		&snap.ID,
		&snap.SessionID,
		&snap.FilePath,
		&operation,
		&before,
		&after,
		&status,
		&snap.StepIndex,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.Operation = loom.SnapshotOp(operation)
	snap.Status = loom.SnapshotStatus(status)
	if before.Valid {
		v := before.String
		snap.Before = &v
	}
	if after.Valid {
		v := after.String
		snap.After = &v
	}
	return snap, nil
}
