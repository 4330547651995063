// Package toolkit implements the filesystem tools the model may invoke.
// Every tool is session-scoped: path arguments must resolve inside the
// session's project, reads and writes go through the lock arbiter, and
// mutations are journalled before they touch disk.
package toolkit

import (
	"context"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/arbiter"
	"github.com/tessellate-ai/loom/journal"
	"github.com/tessellate-ai/loom/log"
	"github.com/tessellate-ai/loom/store"
)

// Completer receives the terminal tool calls. The session manager implements
// it; tools never transition session status themselves.
type Completer interface {
	// FinishWork moves the session to review and records completion
	// metadata.
	FinishWork(ctx context.Context, sessionID, summary string, changes []string, notes string) error

	// RequireClarification moves the session to need_clarification and
	// records the question for the user.
	RequireClarification(ctx context.Context, sessionID, question, background string, suggestions []string) error
}

// Options configures a Toolkit.
type Options struct {
	Store          *store.Store
	Arbiter        *arbiter.Arbiter
	Journal        *journal.Journal
	Completer      Completer
	Logger         log.Logger
	IgnorePatterns []string
}

// Toolkit holds the shared collaborators the individual tools draw on.
type Toolkit struct {
	store          *store.Store
	arbiter        *arbiter.Arbiter
	journal        *journal.Journal
	completer      Completer
	logger         log.Logger
	ignorePatterns []string
}

// New returns a Toolkit wired to the given collaborators.
func New(opts Options) *Toolkit {
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}
	if opts.IgnorePatterns == nil {
		opts.IgnorePatterns = DefaultIgnorePatterns
	}
	return &Toolkit{
		store:          opts.Store,
		arbiter:        opts.Arbiter,
		journal:        opts.Journal,
		completer:      opts.Completer,
		logger:         opts.Logger,
		ignorePatterns: opts.IgnorePatterns,
	}
}

// Tools returns the full tool catalogue presented to the model.
func (k *Toolkit) Tools() []loom.Tool {
	return []loom.Tool{
		loom.ToolAdapter(&ReadFileTool{toolkit: k}),
		loom.ToolAdapter(&WriteFileTool{toolkit: k}),
		loom.ToolAdapter(&DeleteFileTool{toolkit: k}),
		loom.ToolAdapter(&ListDirectoryTool{toolkit: k}),
		loom.ToolAdapter(&CreateDirectoryTool{toolkit: k}),
		loom.ToolAdapter(&SearchFilesTool{toolkit: k}),
		loom.ToolAdapter(&GetProjectInfoTool{toolkit: k}),
		loom.ToolAdapter(&FinishWorkTool{toolkit: k}),
		loom.ToolAdapter(&RequireClarificationTool{toolkit: k}),
	}
}

// beginStep appends a running progress entry for a tool call and returns a
// closure that finalizes it as completed or failed.
func (k *Toolkit) beginStep(ctx context.Context, tc *loom.ToolContext, step string) func(result *loom.ToolResult) {
	entry := &loom.ProgressEntry{
		SessionID: tc.SessionID,
		Step:      step,
		Status:    loom.ProgressRunning,
	}
	if err := k.store.AddProgress(ctx, entry); err != nil {
		k.logger.Warn("failed to record progress", "session_id", tc.SessionID, "error", err)
	}
	return func(result *loom.ToolResult) {
		status := loom.ProgressCompleted
		var details string
		if result == nil || result.IsError {
			status = loom.ProgressFailed
			if result != nil {
				details = result.Content
			}
		}
		err := k.store.AddProgress(ctx, &loom.ProgressEntry{
			SessionID: tc.SessionID,
			Step:      step,
			Status:    status,
			Details:   details,
		})
		if err != nil {
			k.logger.Warn("failed to record progress", "session_id", tc.SessionID, "error", err)
		}
	}
}
