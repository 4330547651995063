package loom

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tessellate-ai/loom/schema"
)

// ToolContext identifies the session on whose behalf a tool call runs. The
// execution engine passes it explicitly with every dispatch; tools never rely
// on ambient process state to discover the current session.
type ToolContext struct {
	SessionID   string
	ProjectPath string
	StepIndex   int
}

// ToolAnnotations are optional hints describing tool behavior.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint,omitempty"`
	DestructiveHint bool   `json:"destructiveHint,omitempty"`
	IdempotentHint  bool   `json:"idempotentHint,omitempty"`
}

// ToolResult is the output of a tool call. Failures are carried in-band with
// IsError set so the model can react to them; tools never surface ordinary
// failures as Go errors across the model boundary.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`

	// LockConflict is set when the call failed because the path is locked
	// by another session. The engine uses it to drive the failure edge of
	// the lifecycle state machine; it is not serialized for the model.
	LockConflict *LockConflictError `json:"-"`
}

// NewToolResultText returns a successful text result.
func NewToolResultText(text string) *ToolResult {
	return &ToolResult{Content: text}
}

// NewToolResultError returns an in-band error result.
func NewToolResultError(text string) *ToolResult {
	return &ToolResult{Content: text, IsError: true}
}

// NewToolResultConflict returns an in-band lock conflict result.
func NewToolResultConflict(conflict *LockConflictError) *ToolResult {
	return &ToolResult{
		Content:      conflict.Error(),
		IsError:      true,
		LockConflict: conflict,
	}
}

// Tool is a function the model may invoke. Input arrives as the raw JSON
// emitted by the model and is validated against the tool's declared schema
// shape during unmarshalling.
type Tool interface {
	// Name of the tool, as presented to the model.
	Name() string

	// Description of the tool, as presented to the model.
	Description() string

	// Schema describes the tool's input parameters.
	Schema() schema.Schema

	// Annotations returns hints describing the tool's behavior.
	Annotations() ToolAnnotations

	// Call invokes the tool for the given session context.
	Call(ctx context.Context, tc *ToolContext, input json.RawMessage) (*ToolResult, error)
}

// TypedTool is a tool with a strongly typed input.
type TypedTool[T any] interface {
	Name() string
	Description() string
	Schema() schema.Schema
	Annotations() ToolAnnotations
	Call(ctx context.Context, tc *ToolContext, input T) (*ToolResult, error)
}

// ToolAdapter wraps a TypedTool so it can be dispatched as a Tool. The
// adapter unmarshals the model's raw JSON input into the typed form and
// rejects calls that arrive without a session context.
func ToolAdapter[T any](tool TypedTool[T]) *TypedToolAdapter[T] {
	return &TypedToolAdapter[T]{tool: tool}
}

// TypedToolAdapter adapts a TypedTool to the Tool interface.
type TypedToolAdapter[T any] struct {
	tool TypedTool[T]
}

func (t *TypedToolAdapter[T]) Name() string {
	return t.tool.Name()
}

func (t *TypedToolAdapter[T]) Description() string {
	return t.tool.Description()
}

func (t *TypedToolAdapter[T]) Schema() schema.Schema {
	return t.tool.Schema()
}

func (t *TypedToolAdapter[T]) Annotations() ToolAnnotations {
	return t.tool.Annotations()
}

func (t *TypedToolAdapter[T]) Call(ctx context.Context, tc *ToolContext, input json.RawMessage) (*ToolResult, error) {
	if tc == nil || tc.SessionID == "" {
		return NewToolResultError("no active session"), nil
	}
	var typed T
	if len(input) > 0 {
		if err := json.Unmarshal(input, &typed); err != nil {
			return NewToolResultError(fmt.Sprintf("invalid input for tool %s: %v", t.Name(), err)), nil
		}
	}
	return t.tool.Call(ctx, tc, typed)
}

// Unwrap returns the underlying TypedTool.
func (t *TypedToolAdapter[T]) Unwrap() TypedTool[T] {
	return t.tool
}
