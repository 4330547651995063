package toolkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// FinishWorkInput is the input for the finish_work tool.
type FinishWorkInput struct {
	Summary string   `json:"summary"`
	Changes []string `json:"changes,omitempty"`
	Notes   string   `json:"notes,omitempty"`
}

// FinishWorkTool is the terminal tool the model calls when the task is done.
// It moves the session to review through the session manager.
type FinishWorkTool struct {
	toolkit *Toolkit
}

func (t *FinishWorkTool) Name() string {
	return "finish_work"
}

func (t *FinishWorkTool) Description() string {
	return "Call this when the task is complete. Provide a summary of what was done, an optional list of changed files, and optional notes for the reviewer. This ends the work session and submits it for review."
}

func (t *FinishWorkTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"summary"},
		Properties: map[string]*schema.Property{
			"summary": {
				Type:        "string",
				Description: "Summary of the work that was completed",
			},
			"changes": {
				Type:        "array",
				Description: "Paths of the files that were changed",
				Items:       &schema.Property{Type: "string"},
			},
			"notes": {
				Type:        "string",
				Description: "Anything the reviewer should know",
			},
		},
	}
}

func (t *FinishWorkTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title: "Finish Work",
	}
}

func (t *FinishWorkTool) Call(ctx context.Context, tc *loom.ToolContext, input FinishWorkInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, "finish work")
	result := t.call(ctx, tc, input)
	finish(result)
	return result, nil
}

func (t *FinishWorkTool) call(ctx context.Context, tc *loom.ToolContext, input FinishWorkInput) *loom.ToolResult {
	if strings.TrimSpace(input.Summary) == "" {
		return loom.NewToolResultError("summary is required")
	}
	if err := t.toolkit.completer.FinishWork(ctx, tc.SessionID, input.Summary, input.Changes, input.Notes); err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to finish work: %v", err))
	}
	return loom.NewToolResultText("Work submitted for review.")
}
