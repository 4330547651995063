package llm

import "strings"

// Response is one accumulated assistant turn.
type Response struct {
	StopReason StopReason  `json:"stop_reason"`
	Message    *Message    `json:"message"`
	ToolCalls  []*ToolCall `json:"tool_calls,omitempty"`
}

// Text returns the assistant text of the response.
func (r *Response) Text() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.Text()
}

// ResponseAccumulator assembles a complete Response from streamed events.
type ResponseAccumulator struct {
	text       strings.Builder
	toolCalls  []*ToolCall
	stopReason StopReason
	stopped    bool
}

// NewResponseAccumulator returns an empty accumulator.
func NewResponseAccumulator() *ResponseAccumulator {
	return &ResponseAccumulator{}
}

// AddEvent folds one streamed event into the accumulated response.
func (a *ResponseAccumulator) AddEvent(event *Event) {
	switch event.Type {
	case EventTextDelta:
		a.text.WriteString(event.Text)
	case EventToolCall:
		if event.ToolCall != nil {
			a.toolCalls = append(a.toolCalls, event.ToolCall)
		}
	case EventMessageStop:
		a.stopReason = event.StopReason
		a.stopped = true
	}
}

// Complete reports whether a message_stop event was seen.
func (a *ResponseAccumulator) Complete() bool {
	return a.stopped
}

// Response returns the accumulated response. The assistant message carries
// the text content followed by one tool_use block per requested call.
func (a *ResponseAccumulator) Response() *Response {
	msg := &Message{Role: Assistant}
	if text := a.text.String(); text != "" {
		msg.Content = append(msg.Content, &Content{Type: ContentTypeText, Text: text})
	}
	for _, call := range a.toolCalls {
		msg.Content = append(msg.Content, &Content{
			Type:  ContentTypeToolUse,
			ID:    call.ID,
			Name:  call.Name,
			Input: call.Input,
		})
	}
	return &Response{
		StopReason: a.stopReason,
		Message:    msg,
		ToolCalls:  a.toolCalls,
	}
}
