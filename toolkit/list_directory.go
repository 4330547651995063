package toolkit

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// ListDirectoryInput is the input for the list_directory tool.
type ListDirectoryInput struct {
	Path string `json:"path"`
}

// ListDirectoryTool enumerates the immediate children of a directory inside
// the project. No lock is taken.
type ListDirectoryTool struct {
	toolkit *Toolkit
}

func (t *ListDirectoryTool) Name() string {
	return "list_directory"
}

func (t *ListDirectoryTool) Description() string {
	return "Lists the immediate children of a directory, marking each entry as a file or a directory. The path must be inside the project."
}

func (t *ListDirectoryTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"path"},
		Properties: map[string]*schema.Property{
			"path": {
				Type:        "string",
				Description: "Path to the directory to list, absolute or relative to the project root",
			},
		},
	}
}

func (t *ListDirectoryTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title:        "List Directory",
		ReadOnlyHint: true,
	}
}

func (t *ListDirectoryTool) Call(ctx context.Context, tc *loom.ToolContext, input ListDirectoryInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, fmt.Sprintf("list %s", input.Path))
	result := t.call(tc, input)
	finish(result)
	return result, nil
}

func (t *ListDirectoryTool) call(tc *loom.ToolContext, input ListDirectoryInput) *loom.ToolResult {
	path, err := ResolveWithin(tc.ProjectPath, input.Path)
	if err != nil {
		return loom.NewToolResultError(err.Error())
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return loom.NewToolResultError(fmt.Sprintf("directory not found: %s", input.Path))
		}
		return loom.NewToolResultError(fmt.Sprintf("failed to list directory: %v", err))
	}
	if len(entries) == 0 {
		return loom.NewToolResultText(fmt.Sprintf("Directory %s is empty", input.Path))
	}
	var sb strings.Builder
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "directory"
		}
		fmt.Fprintf(&sb, "%s\t%s\n", entry.Name(), kind)
	}
	return loom.NewToolResultText(sb.String())
}
