package loom

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessellate-ai/loom/schema"
)

type echoInput struct {
	Text string `json:"text"`
}

type echoTool struct{}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "echoes its input" }

func (t *echoTool) Schema() schema.Schema {
	return schema.Schema{
		Type:     "object",
		Required: []string{"text"},
		Properties: map[string]*schema.Property{
			"text": {Type: "string", Description: "text to echo"},
		},
	}
}

func (t *echoTool) Annotations() ToolAnnotations {
	return ToolAnnotations{Title: "Echo", ReadOnlyHint: true}
}

func (t *echoTool) Call(ctx context.Context, tc *ToolContext, input echoInput) (*ToolResult, error) {
	return NewToolResultText(fmt.Sprintf("%s:%s", tc.SessionID, input.Text)), nil
}

func TestTypedToolAdapter(t *testing.T) {
	adapter := ToolAdapter[echoInput](&echoTool{})
	assert.Equal(t, "echo", adapter.Name())
	assert.Equal(t, "Echo", adapter.Annotations().Title)

	tc := &ToolContext{SessionID: "s1", ProjectPath: "/p"}
	result, err := adapter.Call(context.Background(), tc, json.RawMessage(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "s1:hello", result.Content)
}

func TestTypedToolAdapterNoSession(t *testing.T) {
	adapter := ToolAdapter[echoInput](&echoTool{})

	result, err := adapter.Call(context.Background(), nil, json.RawMessage(`{"text":"x"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "no active session", result.Content)

	result, err = adapter.Call(context.Background(), &ToolContext{}, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestTypedToolAdapterInvalidInput(t *testing.T) {
	adapter := ToolAdapter[echoInput](&echoTool{})
	tc := &ToolContext{SessionID: "s1"}

	result, err := adapter.Call(context.Background(), tc, json.RawMessage(`{not json`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "invalid input")
}

func TestToolResultConflict(t *testing.T) {
	conflict := &LockConflictError{Path: "/p/x.ts", ConflictingSession: "other"}
	result := NewToolResultConflict(conflict)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "/p/x.ts")
	assert.Same(t, conflict, result.LockConflict)

	// The conflict pointer stays out of the serialized form the model sees.
	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "conflicting")
}
