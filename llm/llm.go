package llm

import (
	"context"

	"github.com/tessellate-ai/loom/schema"
)

// ToolDefinition is the schema of one tool presented to the model.
type ToolDefinition struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Schema      schema.Schema `json:"input_schema"`
}

// Request is one streaming generation request.
type Request struct {
	SystemPrompt string
	Messages     []*Message
	Tools        []ToolDefinition
	MaxTokens    int
}

// StreamingClient is the external language-model client. It accepts a
// message list plus tool schemas and returns a stream of assistant text,
// tool-call requests and a finish reason.
type StreamingClient interface {
	Stream(ctx context.Context, req *Request) (Stream, error)
}
