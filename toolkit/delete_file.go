package toolkit

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// DeleteFileInput is the input for the delete_file tool.
type DeleteFileInput struct {
	Path string `json:"path"`
}

// DeleteFileTool removes a file inside the project under an exclusive write
// lock, journalling the file's content first so the delete can be reverted.
type DeleteFileTool struct {
	toolkit *Toolkit
}

func (t *DeleteFileTool) Name() string {
	return "delete_file"
}

func (t *DeleteFileTool) Description() string {
	return "Deletes a file. The path must be inside the project. The file's content is journalled first, so the delete only becomes permanent when the session is accepted."
}

func (t *DeleteFileTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"path"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        "string",
				Description: "Path to the file to delete, absolute or relative to the project root",
			},
		},
	}
}

func (t *DeleteFileTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title:           "Delete File",
		DestructiveHint: true,
	}
}

func (t *DeleteFileTool) Call(ctx context.Context, tc *loom.ToolContext, input DeleteFileInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, fmt.Sprintf("delete %s", input.Path))
	result := t.call(ctx, tc, input)
	finish(result)
	return result, nil
}

func (t *DeleteFileTool) call(ctx context.Context, tc *loom.ToolContext, input DeleteFileInput) *loom.ToolResult {
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

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return loom.NewToolResultError(fmt.Sprintf("file not found: %s", input.Path))
		}
		return loom.NewToolResultError(fmt.Sprintf("failed to stat file: %v", err))
	}
	if _, err := t.toolkit.journal.Capture(ctx, tc.SessionID, path, loom.SnapshotDelete, tc.StepIndex); err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to journal delete: %v", err))
	}
	if err := os.Remove(path); err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to delete file: %v", err))
	}
	return loom.NewToolResultText(fmt.Sprintf("Deleted %s", input.Path))
}
