package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedClient receives more stream
// requests than it has scripted turns.
var ErrScriptExhausted = errors.New("scripted client has no more turns")

// ScriptedTurn is one pre-planned assistant turn for a ScriptedClient.
type ScriptedTurn struct {
	Text       string
	ToolCalls  []*ToolCall
	StopReason StopReason
	Err        error
}

// ScriptedClient replays a fixed sequence of assistant turns. It implements
// StreamingClient and exists for tests and local demonstrations; it also
// records the requests it receives.
type ScriptedClient struct {
	mu       sync.Mutex
	turns    []*ScriptedTurn
	next     int
	Requests []*Request
}

// NewScriptedClient returns a client that replays the given turns in order.
func NewScriptedClient(turns ...*ScriptedTurn) *ScriptedClient {
	return &ScriptedClient{turns: turns}
}

func (c *ScriptedClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.next >= len(c.turns) {
		return nil, ErrScriptExhausted
	}
	turn := c.turns[c.next]
	c.next++
	if turn.Err != nil {
		return nil, turn.Err
	}
	return newScriptedStream(turn), nil
}

type scriptedStream struct {
	events []*Event
	pos    int
}

func newScriptedStream(turn *ScriptedTurn) *scriptedStream {
	events := []*Event{{Type: EventMessageStart}}
	if turn.Text != "" {
		events = append(events, &Event{Type: EventTextDelta, Text: turn.Text})
	}
	for _, call := range turn.ToolCalls {
		events = append(events, &Event{Type: EventToolCall, ToolCall: call})
	}
	stopReason := turn.StopReason
	if stopReason == "" {
		if len(turn.ToolCalls) > 0 {
			stopReason = StopReasonToolUse
		} else {
			stopReason = StopReasonStop
		}
	}
	events = append(events, &Event{Type: EventMessageStop, StopReason: stopReason})
	return &scriptedStream{events: events}
}

func (s *scriptedStream) Next(ctx context.Context) (*Event, bool) {
	if ctx.Err() != nil || s.pos >= len(s.events) {
		return nil, false
	}
	event := s.events[s.pos]
	s.pos++
	return event, true
}

func (s *scriptedStream) Err() error {
	return nil
}

func (s *scriptedStream) Close() error {
	return nil
}
