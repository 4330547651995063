package toolkit

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// ReadFileInput is the input for the read_file tool.
type ReadFileInput struct {
	Path string `json:"path"`
}

// ReadFileTool reads a file inside the project under a shared read lock. The
// lock is released before the tool returns.
type ReadFileTool struct {
	toolkit *Toolkit
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Reads a file and returns its content as text. The path must be inside the project. If another agent holds a write lock on the file, the call fails with the conflicting session."
}

func (t *ReadFileTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"path"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        "string",
				Description: "Path to the file to read, absolute or relative to the project root",
			},
		},
	}
}

func (t *ReadFileTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title:        "Read File",
		ReadOnlyHint: true,
	}
}

func (t *ReadFileTool) Call(ctx context.Context, tc *loom.ToolContext, input ReadFileInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, fmt.Sprintf("read %s", input.Path))
	result := t.call(ctx, tc, input)
	finish(result)
	return result, nil
}

func (t *ReadFileTool) call(ctx context.Context, tc *loom.ToolContext, input ReadFileInput) *loom.ToolResult {
	path, err := ResolveWithin(tc.ProjectPath, input.Path)
	if err != nil {
		return loom.NewToolResultError(err.Error())
	}
	lock, err := t.toolkit.arbiter.AcquireRead(ctx, tc.SessionID, path)
	if err != nil {
		var conflict *loom.LockConflictError
		if errors.As(err, &conflict) {
			return loom.NewToolResultConflict(conflict)
		}
		return loom.NewToolResultError(fmt.Sprintf("failed to acquire read lock: %v", err))
	}
	defer t.toolkit.arbiter.Release(ctx, lock.ID, tc.SessionID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return loom.NewToolResultError(fmt.Sprintf("file not found: %s", input.Path))
		}
		return loom.NewToolResultError(fmt.Sprintf("failed to read file: %v", err))
	}
	return loom.NewToolResultText(string(data))
}
