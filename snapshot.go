package loom

import "time"

// SnapshotOp is the kind of file mutation a snapshot records.
type SnapshotOp string

const (
	SnapshotCreate SnapshotOp = "create"
	SnapshotUpdate SnapshotOp = "update"
	SnapshotDelete SnapshotOp = "delete"
)

// SnapshotStatus tracks whether a journalled mutation is still pending the
// human review decision.
type SnapshotStatus string

const (
	SnapshotPending  SnapshotStatus = "pending"
	SnapshotAccepted SnapshotStatus = "accepted"
	SnapshotReverted SnapshotStatus = "reverted"
)

// Snapshot journals enough bytes to undo or reapply one file mutation.
// Before is the exact on-disk bytes read just before an update or delete
// (nil for create); After is the exact bytes written by a create or update
// (nil for delete). StepIndex is monotone per session at capture time, which
// makes bulk revert deterministic.
type Snapshot struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	FilePath  string         `json:"file_path"`
	Operation SnapshotOp     `json:"operation"`
	Before    *string        `json:"before,omitempty"`
	After     *string        `json:"after,omitempty"`
	Status    SnapshotStatus `json:"status"`
	StepIndex int            `json:"step_index"`
	CreatedAt time.Time      `json:"created_at"`
}
