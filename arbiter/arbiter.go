// Package arbiter mediates read and write lock access to paths across all
// sessions. Acquisition never blocks: it is a single immediate decision made
// inside one serialized purge-check-insert transaction against the lock
// table, and the loser of a race observes a conflict rather than queueing.
package arbiter

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/events"
	"github.com/tessellate-ai/loom/log"
	"github.com/tessellate-ai/loom/store"
)

const (
	// DefaultTTL bounds how long a lock stays live without release.
	DefaultTTL = 30 * time.Second

	// CommonPathTTL is the shorter expiry applied to frequently contended
	// files to minimise head-of-line blocking.
	CommonPathTTL = 5 * time.Second
)

// DefaultCommonPatterns match the basenames of files that many agents touch:
// package manifests, compiler configs, lock files and the top-level README.
var DefaultCommonPatterns = []string{
	"package.json",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"tsconfig*.json",
	"jsconfig*.json",
	"go.mod",
	"go.sum",
	"Cargo.toml",
	"Cargo.lock",
	"README*",
}

// Options configures an Arbiter.
type Options struct {
	Store          *store.Store
	Bus            *events.Bus
	Logger         log.Logger
	DefaultTTL     time.Duration
	CommonTTL      time.Duration
	CommonPatterns []string
}

// Arbiter grants, denies and expires path locks.
type Arbiter struct {
	store          *store.Store
	bus            *events.Bus
	logger         log.Logger
	defaultTTL     time.Duration
	commonTTL      time.Duration
	commonPatterns []string
}

// New returns an Arbiter backed by the given store.
func New(opts Options) *Arbiter {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.CommonTTL <= 0 {
		opts.CommonTTL = CommonPathTTL
	}
	if opts.CommonPatterns == nil {
		opts.CommonPatterns = DefaultCommonPatterns
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}
	return &Arbiter{
		store:          opts.Store,
		bus:            opts.Bus,
		logger:         opts.Logger,
		defaultTTL:     opts.DefaultTTL,
		commonTTL:      opts.CommonTTL,
		commonPatterns: opts.CommonPatterns,
	}
}

// AcquireRead grants a shared read lock on path, or returns a
// *loom.LockConflictError naming the session holding a live write lock.
func (a *Arbiter) AcquireRead(ctx context.Context, sessionID, path string) (*loom.Lock, error) {
	return a.acquire(ctx, sessionID, path, loom.LockRead)
}

// AcquireWrite grants an exclusive write lock on path, or returns a
// *loom.LockConflictError naming the session holding any live lock.
func (a *Arbiter) AcquireWrite(ctx context.Context, sessionID, path string) (*loom.Lock, error) {
	return a.acquire(ctx, sessionID, path, loom.LockWrite)
}

func (a *Arbiter) acquire(ctx context.Context, sessionID, path string, kind loom.LockKind) (*loom.Lock, error) {
	path = filepath.Clean(path)
	lock, conflicting, err := a.store.AcquireLock(ctx, sessionID, path, kind, a.ttlFor(path))
	if err != nil {
		return nil, err
	}
	if conflicting != "" {
		conflict := &loom.LockConflictError{Path: path, ConflictingSession: conflicting}
		a.logger.Debug("lock conflict",
			"session_id", sessionID,
			"path", path,
			"kind", string(kind),
			"conflicting_session", conflicting,
		)
		if a.bus != nil {
			a.bus.Publish(events.Event{
				Topic:     events.TopicLockConflict,
				SessionID: sessionID,
				Payload: map[string]any{
					"path":                path,
					"kind":                string(kind),
					"conflicting_session": conflicting,
				},
			})
		}
		return nil, conflict
	}
	return lock, nil
}

// Release removes a lock. Releasing an expired or already purged lock is a
// no-op.
func (a *Arbiter) Release(ctx context.Context, lockID, sessionID string) error {
	return a.store.ReleaseLock(ctx, lockID, sessionID)
}

// ReleaseAllForSession removes every lock held by a session. Called on
// execution teardown as the backstop for hard failures.
func (a *Arbiter) ReleaseAllForSession(ctx context.Context, sessionID string) error {
	return a.store.ReleaseAllLocks(ctx, sessionID)
}

// Conflicts is a read-only preflight: it returns the subset of paths that
// are currently live-locked by sessions other than the given one.
func (a *Arbiter) Conflicts(ctx context.Context, sessionID string, paths []string) ([]string, error) {
	var conflicts []string
	for _, path := range paths {
		path = filepath.Clean(path)
		locks, err := a.store.ListLiveLocks(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, lock := range locks {
			if lock.SessionID != sessionID {
				conflicts = append(conflicts, path)
				break
			}
		}
	}
	return conflicts, nil
}

// ttlFor picks the expiry for a path: common files get the short TTL.
func (a *Arbiter) ttlFor(path string) time.Duration {
	base := filepath.Base(path)
	for _, pattern := range a.commonPatterns {
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return a.commonTTL
		}
	}
	return a.defaultTTL
}
