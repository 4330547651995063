package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tessellate-ai/loom"
)

// AcquireLock runs the purge-expired, conflict-check, insert sequence as one
// serialized transaction against the lock table. It returns the new lock on
// success, or the conflicting session id when a live lock held by a
// different session excludes the request. Same-session re-acquisition always
// succeeds and issues a new lock id.
func (s *Store) AcquireLock(ctx context.Context, sessionID, filePath string, kind loom.LockKind, ttl time.Duration) (*loom.Lock, string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, "DELETE FROM locks WHERE expires_at <= ?", now); err != nil {
		return nil, "", fmt.Errorf("failed to purge expired locks: %w", err)
	}

	// A read lock conflicts only with a live write lock held by another
	// session. A write lock conflicts with any live lock held by another
	// session.
	conflictQuery := `
		SELECT session_id FROM locks
		WHERE file_path = ? AND session_id != ? AND expires_at > ?
	`
	args := []any{filePath, sessionID, now}
	if kind == loom.LockRead {
		conflictQuery += " AND kind = ?"
		args = append(args, string(loom.LockWrite))
	}
	conflictQuery += " LIMIT 1"

	var conflicting string
	err = tx.QueryRowContext(ctx, conflictQuery, args...).Scan(&conflicting)
	if err != nil && err != sql.ErrNoRows {
		return nil, "", fmt.Errorf("failed to check lock conflicts: %w", err)
	}
	if err == nil {
		return nil, conflicting, nil
	}

	lock := &loom.Lock{
		ID:         loom.NewID(),
		SessionID:  sessionID,
		FilePath:   filePath,
		Kind:       kind,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO locks (id, session_id, file_path, kind, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, lock.ID, lock.SessionID, lock.FilePath, string(lock.Kind), lock.AcquiredAt, lock.ExpiresAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert lock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit lock acquisition: %w", err)
	}
	return lock, "", nil
}

// ReleaseLock removes a lock by id. Releasing a lock that has already
// expired or been purged is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, lockID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM locks WHERE id = ? AND session_id = ?", lockID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// ReleaseAllLocks removes every lock held by a session.
func (s *Store) ReleaseAllLocks(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM locks WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to release session locks: %w", err)
	}
	return nil
}

// ListLiveLocks returns the locks with expires_at in the future, optionally
// restricted to one path.
func (s *Store) ListLiveLocks(ctx context.Context, filePath string) ([]*loom.Lock, error) {
	query := `
		SELECT id, session_id, file_path, kind, acquired_at, expires_at
		FROM locks WHERE expires_at > ?
	`
	args := []any{time.Now().UTC()}
	if filePath != "" {
		query += " AND file_path = ?"
		args = append(args, filePath)
	}
	query += " ORDER BY acquired_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	defer rows.Close()

	var locks []*loom.Lock
	for rows.Next() {
		lock := &loom.Lock{}
		var kind string
		if err := rows.Scan(&lock.ID, &lock.SessionID, &lock.FilePath, &kind, &lock.AcquiredAt, &lock.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		lock.Kind = loom.LockKind(kind)
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return locks, nil
}
