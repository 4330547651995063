package toolkit

import (
	"context"
	"fmt"
	"os"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// CreateDirectoryInput is the input for the create_directory tool.
type CreateDirectoryInput struct {
	Path string `json:"path"`
}

// CreateDirectoryTool creates a directory inside the project, including any
// missing parents. Idempotent; no lock is taken.
type CreateDirectoryTool struct {
	toolkit *Toolkit
}

func (t *CreateDirectoryTool) Name() string {
	return "create_directory"
}

func (t *CreateDirectoryTool) Description() string {
	return "Creates a directory and any missing parent directories. Succeeds if the directory already exists. The path must be inside the project."
}

func (t *CreateDirectoryTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"path"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        "string",
				Description: "Path to the directory to create, absolute or relative to the project root",
			},
		},
	}
}

func (t *CreateDirectoryTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title:          "Create Directory",
		IdempotentHint: true,
	}
}

func (t *CreateDirectoryTool) Call(ctx context.Context, tc *loom.ToolContext, input CreateDirectoryInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, fmt.Sprintf("mkdir %s", input.Path))
	result := t.call(tc, input)
	finish(result)
	return result, nil
}

func (t *CreateDirectoryTool) call(tc *loom.ToolContext, input CreateDirectoryInput) *loom.ToolResult {
	path, err := ResolveWithin(tc.ProjectPath, input.Path)
	if err != nil {
		return loom.NewToolResultError(err.Error())
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to create directory: %v", err))
	}
	return loom.NewToolResultText(fmt.Sprintf("Created directory %s", input.Path))
}
