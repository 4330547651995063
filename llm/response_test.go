package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseAccumulator(t *testing.T) {
	acc := NewResponseAccumulator()
	acc.AddEvent(&Event{Type: EventMessageStart})
	acc.AddEvent(&Event{Type: EventTextDelta, Text: "Hello "})
	acc.AddEvent(&Event{Type: EventTextDelta, Text: "world"})
	acc.AddEvent(&Event{Type: EventToolCall, ToolCall: &ToolCall{
		ID: "call-1", Name: "read_file", Input: json.RawMessage(`{"path":"a.txt"}`),
	}})
	assert.False(t, acc.Complete())

	acc.AddEvent(&Event{Type: EventMessageStop, StopReason: StopReasonToolUse})
	require.True(t, acc.Complete())

	resp := acc.Response()
	assert.Equal(t, StopReasonToolUse, resp.StopReason)
	assert.Equal(t, "Hello world", resp.Text())
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name)

	uses := resp.Message.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "call-1", uses[0].ID)
}

func TestScriptedClientReplay(t *testing.T) {
	client := NewScriptedClient(
		&ScriptedTurn{Text: "thinking", ToolCalls: []*ToolCall{
			{ID: "c1", Name: "list_directory", Input: json.RawMessage(`{"path":"."}`)},
		}},
		&ScriptedTurn{Text: "done"},
	)
	ctx := context.Background()

	stream, err := client.Stream(ctx, &Request{Messages: []*Message{NewUserMessage("go")}})
	require.NoError(t, err)
	acc := NewResponseAccumulator()
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		acc.AddEvent(event)
	}
	require.NoError(t, stream.Err())
	resp := acc.Response()
	assert.Equal(t, StopReasonToolUse, resp.StopReason)
	assert.Equal(t, "thinking", resp.Text())
	require.Len(t, resp.ToolCalls, 1)

	stream, err = client.Stream(ctx, &Request{})
	require.NoError(t, err)
	acc = NewResponseAccumulator()
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		acc.AddEvent(event)
	}
	resp = acc.Response()
	assert.Equal(t, StopReasonStop, resp.StopReason)
	assert.Empty(t, resp.ToolCalls)

	_, err = client.Stream(ctx, &Request{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Len(t, client.Requests, 3)
}

func TestNewToolOutputMessage(t *testing.T) {
	msg := NewToolOutputMessage(
		&ToolOutput{ToolUseID: "c1", Content: "ok"},
		&ToolOutput{ToolUseID: "c2", Content: "boom", IsError: true},
	)
	assert.Equal(t, User, msg.Role)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, ContentTypeToolResult, msg.Content[0].Type)
	assert.Equal(t, "c1", msg.Content[0].ToolUseID)
	assert.True(t, msg.Content[1].IsError)
}
