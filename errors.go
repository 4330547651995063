package loom

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown session or record id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning indicates a start request for a session that is
	// already holding an execution context.
	ErrAlreadyRunning = errors.New("agent is already running")

	// ErrNotRunning indicates a stop request for a session with no
	// execution context.
	ErrNotRunning = errors.New("agent is not running")

	// ErrCancelled indicates an execution that was aborted before the model
	// stream finished.
	ErrCancelled = errors.New("execution cancelled")

	// ErrNoClient indicates a start request against a core configured
	// without a model client.
	ErrNoClient = errors.New("no model client configured")
)

// IllegalTransitionError is returned when a requested lifecycle transition
// is not in the state machine's transition table. It is raised before any
// mutation takes place.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %q to %q", e.From, e.To)
}

// LockConflictError indicates that a path is locked by a different session.
type LockConflictError struct {
	Path               string
	ConflictingSession string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("path %q is locked by session %s", e.Path, e.ConflictingSession)
}

// OutOfBoundsError indicates a path argument that resolved outside the
// session's project boundary.
type OutOfBoundsError struct {
	Path string
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("path %q is outside project bounds", e.Path)
}

// StepLimitError indicates that an execution exceeded its step cap.
type StepLimitError struct {
	Limit int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("execution exceeded the step limit of %d", e.Limit)
}
