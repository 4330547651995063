package llm

import (
	"context"
	"encoding/json"
)

// StopReason reports why a model stream finished.
type StopReason string

const (
	// StopReasonStop means the model finished its turn normally.
	StopReasonStop StopReason = "stop"

	// StopReasonToolUse means the model paused to await tool results.
	StopReasonToolUse StopReason = "tool_use"

	// StopReasonMaxTokens means the generation hit the token limit.
	StopReasonMaxTokens StopReason = "max_tokens"

	// StopReasonError means the provider reported a failure mid-stream.
	StopReasonError StopReason = "error"
)

// EventType represents the type of a streaming event.
type EventType string

const (
	EventMessageStart EventType = "message_start"
	EventTextDelta    EventType = "text_delta"
	EventToolCall     EventType = "tool_call"
	EventMessageStop  EventType = "message_stop"
)

// ToolCall is a complete tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Event is a single streaming event from the model. A successful stream ends
// with a message_stop event carrying the stop reason.
type Event struct {
	Type       EventType  `json:"type"`
	Text       string     `json:"text,omitempty"`
	ToolCall   *ToolCall  `json:"tool_call,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// Stream represents a stream of model generation events.
type Stream interface {
	// Next returns the next event in the stream. The second return value is
	// false when the stream is complete or an error occurred; errors are
	// retrieved via Err.
	Next(ctx context.Context) (*Event, bool)

	// Err returns any error that occurred while reading from the stream.
	Err() error

	// Close closes the stream and releases any associated resources.
	Close() error
}
