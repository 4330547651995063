// Package journal records every mutating file operation performed by an
// agent so that the human decision at session end is a pure function over
// the journal: accept re-applies the recorded intent, revert restores the
// recorded before-state in reverse capture order.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/log"
	"github.com/tessellate-ai/loom/store"
)

// Options configures a Journal.
type Options struct {
	Store  *store.Store
	Logger log.Logger
}

// Journal captures and replays file mutation snapshots.
type Journal struct {
	store  *store.Store
	logger log.Logger
}

// New returns a Journal backed by the given store.
func New(opts Options) *Journal {
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}
	return &Journal{store: opts.Store, logger: opts.Logger}
}

// Capture journals a mutation about to happen. It must be called before the
// operation touches disk: for update and delete it reads the current on-disk
// bytes into the before-content. A missing file is tolerated only for
// create.
func (j *Journal) Capture(ctx context.Context, sessionID, path string, op loom.SnapshotOp, stepIndex int) (*loom.Snapshot, error) {
	path = filepath.Clean(path)
	snap := &loom.Snapshot{
		SessionID: sessionID,
		FilePath:  path,
		Operation: op,
		Status:    loom.SnapshotPending,
		StepIndex: stepIndex,
	}
	if op == loom.SnapshotUpdate || op == loom.SnapshotDelete {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read before-content of %s: %w", path, err)
		}
		before := string(data)
		snap.Before = &before
	}
	if err := j.store.AddSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RecordAfter attaches the bytes written by the mutation to its snapshot.
func (j *Journal) RecordAfter(ctx context.Context, snapshotID string, after *string) error {
	return j.store.SetSnapshotAfter(ctx, snapshotID, after)
}

// ListForSession returns a session's snapshots in capture order, optionally
// filtered by status.
func (j *Journal) ListForSession(ctx context.Context, sessionID string, status loom.SnapshotStatus) ([]*loom.Snapshot, error) {
	return j.store.ListSnapshots(ctx, sessionID, status)
}

// AcceptAll re-applies the recorded intent of every pending snapshot to disk
// and marks them accepted. Re-applying rather than no-opping guarantees the
// on-disk state at acceptance matches the journalled intent even if files
// were touched out-of-band during the session. Idempotent: a second call
// finds no pending snapshots.
func (j *Journal) AcceptAll(ctx context.Context, sessionID string) error {
	pending, err := j.store.ListSnapshots(ctx, sessionID, loom.SnapshotPending)
	if err != nil {
		return err
	}
	for _, snap := range pending {
		switch snap.Operation {
		case loom.SnapshotCreate, loom.SnapshotUpdate:
			if snap.After == nil {
				j.logger.Warn("snapshot has no after-content, skipping apply",
					"snapshot_id", snap.ID, "path", snap.FilePath)
				continue
			}
			if err := writeFile(snap.FilePath, *snap.After); err != nil {
				return fmt.Errorf("failed to apply snapshot %s: %w", snap.ID, err)
			}
		case loom.SnapshotDelete:
			if err := os.Remove(snap.FilePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to apply delete snapshot %s: %w", snap.ID, err)
			}
		}
	}
	n, err := j.store.BulkSetSnapshotStatus(ctx, sessionID, loom.SnapshotPending, loom.SnapshotAccepted)
	if err != nil {
		return err
	}
	j.logger.Info("accepted session changes", "session_id", sessionID, "snapshots", n)
	return nil
}

// RevertAll restores the recorded before-state of every pending snapshot,
// processing them in strict reverse capture order, and marks them reverted.
// Reverse capture order rather than just descending step index: one model
// turn can mutate the same path twice under one step index, and those must
// unwind last-first too. Idempotent.
func (j *Journal) RevertAll(ctx context.Context, sessionID string) error {
	pending, err := j.store.ListSnapshots(ctx, sessionID, loom.SnapshotPending)
	if err != nil {
		return err
	}
	for i := len(pending) - 1; i >= 0; i-- {
		snap := pending[i]
		switch snap.Operation {
		case loom.SnapshotCreate:
			if err := os.Remove(snap.FilePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to revert create snapshot %s: %w", snap.ID, err)
			}
		case loom.SnapshotUpdate, loom.SnapshotDelete:
			if snap.Before == nil {
				j.logger.Warn("snapshot has no before-content, skipping revert",
					"snapshot_id", snap.ID, "path", snap.FilePath)
				continue
			}
			if err := writeFile(snap.FilePath, *snap.Before); err != nil {
				return fmt.Errorf("failed to revert snapshot %s: %w", snap.ID, err)
			}
		}
	}
	n, err := j.store.BulkSetSnapshotStatus(ctx, sessionID, loom.SnapshotPending, loom.SnapshotReverted)
	if err != nil {
		return err
	}
	j.logger.Info("reverted session changes", "session_id", sessionID, "snapshots", n)
	return nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
