package toolkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/schema"
)

// RequireClarificationInput is the input for the require_clarification tool.
type RequireClarificationInput struct {
	Question    string   `json:"question"`
	Background  string   `json:"background,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// RequireClarificationTool is the terminal tool the model calls when it
// cannot proceed without input from the user. It moves the session to
// need_clarification through the session manager.
type RequireClarificationTool struct {
	toolkit *Toolkit
}

func (t *RequireClarificationTool) Name() string {
	return "require_clarification"
}

func (t *RequireClarificationTool) Description() string {
	return "Call this when you cannot proceed without input from the user. Provide the question, optional background on why it blocks you, and optional suggested answers. This pauses the work session until the user responds."
}

func (t *RequireClarificationTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"question"},
		Properties: map[string]*schema.Property{
			"question": {
				Type:        "string",
				Description: "The question the user must answer",
			},
			"background": {
				Type:        "string",
				Description: "Why this question blocks progress",
			},
			"suggestions": {
				Type:        "array",
				Description: "Possible answers the user can pick from",
				Items:       &schema.Property{Type: "string"},
			},
		},
	}
}

func (t *RequireClarificationTool) Annotations() loom.ToolAnnotations {
	return loom.ToolAnnotations{
		Title: "Require Clarification",
	}
}

func (t *RequireClarificationTool) Call(ctx context.Context, tc *loom.ToolContext, input RequireClarificationInput) (*loom.ToolResult, error) {
	finish := t.toolkit.beginStep(ctx, tc, "require clarification")
	result := t.call(ctx, tc, input)
	finish(result)
	return result, nil
}

func (t *RequireClarificationTool) call(ctx context.Context, tc *loom.ToolContext, input RequireClarificationInput) *loom.ToolResult {
	if strings.TrimSpace(input.Question) == "" {
		return loom.NewToolResultError("question is required")
	}
	err := t.toolkit.completer.RequireClarification(ctx, tc.SessionID, input.Question, input.Background, input.Suggestions)
	if err != nil {
		return loom.NewToolResultError(fmt.Sprintf("failed to request clarification: %v", err))
	}
	return loom.NewToolResultText("Waiting for clarification from the user.")
}
