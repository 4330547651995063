// Package sessions exposes the public command surface of the orchestration
// core. The Manager is a facade over the store, lock arbiter, snapshot
// journal and execution engine; it owns the lifecycle state machine and is
// the only component besides the engine that writes session status.
package sessions

import (
	"context"
	"time"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/arbiter"
	"github.com/tessellate-ai/loom/engine"
	"github.com/tessellate-ai/loom/events"
	"github.com/tessellate-ai/loom/journal"
	"github.com/tessellate-ai/loom/llm"
	"github.com/tessellate-ai/loom/log"
	"github.com/tessellate-ai/loom/store"
	"github.com/tessellate-ai/loom/toolkit"
)

// Options configures a Manager.
type Options struct {
	Store  *store.Store
	Bus    *events.Bus
	Client llm.StreamingClient
	Logger log.Logger

	MaxWorkers     int
	MaxSteps       int
	LockTTL        time.Duration
	CommonLockTTL  time.Duration
	CommonPaths    []string
	IgnorePatterns []string
	SystemPrompt   string

	// WatchReviews enables the filesystem watcher that flags out-of-band
	// edits to journalled paths while a session sits in review.
	WatchReviews bool
}

// Manager is the process-wide session facade.
type Manager struct {
	store   *store.Store
	bus     *events.Bus
	logger  log.Logger
	arbiter *arbiter.Arbiter
	journal *journal.Journal
	engine  *engine.Engine
	watcher *journal.ReviewWatcher
}

// New wires a Manager and its collaborators. The returned Manager implements
// the engine's Transitioner and the toolkit's Completer.
func New(opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}
	m := &Manager{
		store:  opts.Store,
		bus:    opts.Bus,
		logger: opts.Logger,
	}
	m.arbiter = arbiter.New(arbiter.Options{
		Store:          opts.Store,
		Bus:            opts.Bus,
		Logger:         opts.Logger,
		DefaultTTL:     opts.LockTTL,
		CommonTTL:      opts.CommonLockTTL,
		CommonPatterns: opts.CommonPaths,
	})
	m.journal = journal.New(journal.Options{
		Store:  opts.Store,
		Logger: opts.Logger,
	})
	kit := toolkit.New(toolkit.Options{
		Store:          opts.Store,
		Arbiter:        m.arbiter,
		Journal:        m.journal,
		Completer:      m,
		Logger:         opts.Logger,
		IgnorePatterns: opts.IgnorePatterns,
	})
	m.engine = engine.New(engine.Options{
		Store:        opts.Store,
		Arbiter:      m.arbiter,
		Bus:          opts.Bus,
		Client:       opts.Client,
		Transitioner: m,
		Tools:        kit.Tools(),
		Logger:       opts.Logger,
		SystemPrompt: opts.SystemPrompt,
		MaxWorkers:   opts.MaxWorkers,
		MaxSteps:     opts.MaxSteps,
	})
	if opts.WatchReviews {
		watcher, err := journal.NewReviewWatcher(opts.Store, opts.Logger)
		if err != nil {
			return nil, err
		}
		m.watcher = watcher
	}
	return m, nil
}

// Close aborts in-flight executions and stops the review watcher. No agent
// status is auto-advanced on shutdown.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.engine.Shutdown(ctx); err != nil {
		return err
	}
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// Transition applies a validated lifecycle transition, stamping timestamps
// appropriate to the target status and merging metadata. An
// IllegalTransitionError is returned before any mutation for a request
// outside the state machine's table.
func (m *Manager) Transition(ctx context.Context, sessionID string, to loom.Status, metadata map[string]any) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := loom.ValidateTransition(sess.Status, to); err != nil {
		return err
	}
	upd := store.StatusUpdate{Metadata: metadata}
	now := time.Now().UTC()
	switch to {
	case loom.StatusDoing:
		upd.StartedAt = &now
	case loom.StatusReview:
		upd.CompletedAt = &now
	}
	if err := m.store.UpdateSessionStatus(ctx, sessionID, to, upd); err != nil {
		return err
	}
	m.publish(events.TopicStatusChanged, sessionID, map[string]any{
		"from": string(sess.Status),
		"to":   string(to),
	})
	m.updateReviewWatch(ctx, sessionID, to)
	return nil
}

// FinishWork implements the terminal finish_work tool: the session moves to
// review with its completion metadata.
func (m *Manager) FinishWork(ctx context.Context, sessionID, summary string, changes []string, notes string) error {
	metadata := map[string]any{"summary": summary}
	if len(changes) > 0 {
		metadata["changes"] = changes
	}
	if notes != "" {
		metadata["notes"] = notes
	}
	return m.Transition(ctx, sessionID, loom.StatusReview, metadata)
}

// RequireClarification implements the terminal require_clarification tool:
// the session moves to need_clarification carrying the question.
func (m *Manager) RequireClarification(ctx context.Context, sessionID, question, background string, suggestions []string) error {
	metadata := map[string]any{"question": question}
	if background != "" {
		metadata["background"] = background
	}
	if len(suggestions) > 0 {
		metadata["suggestions"] = suggestions
	}
	if err := m.Transition(ctx, sessionID, loom.StatusNeedClarification, metadata); err != nil {
		return err
	}
	m.publish(events.TopicNeedsClarification, sessionID, map[string]any{"question": question})
	return nil
}

// updateReviewWatch registers a session's journalled paths with the review
// watcher when it enters review and drops them once the decision is made.
func (m *Manager) updateReviewWatch(ctx context.Context, sessionID string, to loom.Status) {
	if m.watcher == nil {
		return
	}
	switch {
	case to == loom.StatusReview:
		snaps, err := m.journal.ListForSession(ctx, sessionID, loom.SnapshotPending)
		if err != nil {
			m.logger.Warn("failed to list snapshots for review watch",
				"session_id", sessionID, "error", err)
			return
		}
		paths := make([]string, 0, len(snaps))
		for _, snap := range snaps {
			paths = append(paths, snap.FilePath)
		}
		if err := m.watcher.Watch(ctx, sessionID, paths); err != nil {
			m.logger.Warn("failed to watch reviewed paths",
				"session_id", sessionID, "error", err)
		}
	case to.Terminal():
		m.watcher.Unwatch(sessionID)
	}
}

func (m *Manager) publish(topic events.Topic, sessionID string, payload map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{Topic: topic, SessionID: sessionID, Payload: payload})
}
