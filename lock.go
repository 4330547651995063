package loom

import "time"

// LockKind distinguishes shared read locks from exclusive write locks.
type LockKind string

const (
	LockRead  LockKind = "read"
	LockWrite LockKind = "write"
)

// Lock is a time-bounded claim on a path. A lock is live while
// ExpiresAt > now; expired locks are semantically absent. For any path there
// is at most one live write lock, and a live write lock excludes live read
// locks held by other sessions.
type Lock struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	FilePath   string    `json:"file_path"`
	Kind       LockKind  `json:"kind"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Live reports whether the lock is live at the given instant.
func (l *Lock) Live(now time.Time) bool {
	return l.ExpiresAt.After(now)
}
