package toolkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// WriteFileInput is the input for the write_file tool.
type WriteFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteFileTool writes a file inside the project under an exclusive write
// lock. The mutation is journalled before it touches disk and the written
// bytes are verified by reading them back.
type WriteFileTool struct {
	toolkit *Toolkit
}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return "Writes content to a file, creating it and any parent directories if needed. The path must be inside the project. The change is journalled and only becomes permanent when the session is accepted."
}

func (t *WriteFileTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"path", "content"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        "string",
				Description: "Path to the file to write, absolute or relative to the project root",
			},
			"content": {
				Type:        "string",
				Description: "Full content to write to the file",
			},
		},
	}
}

func (t *WriteFileTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title:           "Write File",
		DestructiveHint: true,
	}
}

func (t *WriteFileTool) Call(ctx context.Context, tc *loom.ToolContext, input WriteFileInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, fmt.Sprintf("write %s", input.Path))
	result := t.call(ctx, tc, input)
	finish(result)
	return result, nil
}

func (t *WriteFileTool) call(ctx context.Context, tc *loom.ToolContext, input WriteFileInput) *loom.ToolResult {
	path, err := ResolveWithin(tc.ProjectPath, input.Path)
	if err != nil {
		return loom.NewToolResultError(err.Error())
	}
	lock, err := t.toolkit.arbiter.AcquireWrite(ctx, tc.SessionID, path)
	if err != nil {
		var conflict *loom.LockConflictError
		if errors.As(err, &conflict) {
			return loom.NewToolResultConflict(conflict)
		}
		return loom.NewToolResultError(fmt.Sprintf("failed to acquire write lock: %v", err))
	}
	defer t.toolkit.arbiter.Release(ctx, lock.ID, tc.SessionID)

	op := loom.SnapshotCreate
	if _, err := os.Stat(path); err == nil {
		op = loom.SnapshotUpdate
	}
	snap, err := t.toolkit.journal.Capture(ctx, tc.SessionID, path, op, tc.StepIndex)
	if err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to journal change: %v", err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to create parent directory: %v", err))
	}
	if err := os.WriteFile(path, []byte(input.Content), 0644); err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to write file: %v", err))
	}

	// Read back and byte-compare to catch short or corrupted writes before
	// the journal records the intent as applied.
	written, err := os.ReadFile(path)
	if err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to verify written file: %v", err))
	}
	if !bytes.Equal(written, []byte(input.Content)) {
		return loom.NewToolResultError(fmt.Sprintf("write verification failed for %s: content on disk does not match", input.Path))
	}

	if err := t.toolkit.journal.RecordAfter(ctx, snap.ID, &input.Content); err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to journal written content: %v", err))
	}
	return loom.NewToolResultText(fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path))
}
