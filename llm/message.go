// Package llm defines the boundary to the external language-model streaming
// client. The orchestration core depends only on these interfaces; concrete
// providers live with the embedding application.
package llm

import "encoding/json"

// Role indicates the role of a message in a model conversation.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"
)

func (r Role) String() string {
	return string(r)
}

// ContentType indicates the type of a content block in a message.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content is a single block of content in a message.
type Content struct {
	Type ContentType `json:"type"`

	// Text content, for text and tool_result blocks.
	Text string `json:"text,omitempty"`

	// ID and Name identify a tool_use block.
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	// Input is the raw JSON input of a tool_use block.
	Input json.RawMessage `json:"input,omitempty"`

	// ToolUseID links a tool_result block back to its tool_use.
	ToolUseID string `json:"tool_use_id,omitempty"`

	// IsError marks a tool_result that carries an in-band tool failure.
	IsError bool `json:"is_error,omitempty"`
}

// Message containing content passed to or from the model.
type Message struct {
	Role    Role       `json:"role"`
	Content []*Content `json:"content"`
}

// Text returns the concatenated text content of the message.
func (m *Message) Text() string {
	var out string
	for _, c := range m.Content {
		if c.Type == ContentTypeText {
			if out != "" {
				out += "\n\n"
			}
			out += c.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of the message, in order.
func (m *Message) ToolUses() []*Content {
	var uses []*Content
	for _, c := range m.Content {
		if c.Type == ContentTypeToolUse {
			uses = append(uses, c)
		}
	}
	return uses
}

// NewUserMessage creates a user message with a single text content block.
func NewUserMessage(text string) *Message {
	return &Message{Role: User, Content: []*Content{{Type: ContentTypeText, Text: text}}}
}

// NewAssistantMessage creates an assistant message with a single text
// content block.
func NewAssistantMessage(text string) *Message {
	return &Message{Role: Assistant, Content: []*Content{{Type: ContentTypeText, Text: text}}}
}

// NewSystemMessage creates a system message with a single text content block.
// Providers that only take one system prompt can fold these into it.
func NewSystemMessage(text string) *Message {
	return &Message{Role: System, Content: []*Content{{Type: ContentTypeText, Text: text}}}
}

// ToolOutput is the result of one executed tool call, returned to the model.
type ToolOutput struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// NewToolOutputMessage creates a user message carrying tool results back to
// the model.
func NewToolOutputMessage(outputs ...*ToolOutput) *Message {
	content := make([]*Content, len(outputs))
	for i, out := range outputs {
		content[i] = &Content{
			Type:      ContentTypeToolResult,
			ToolUseID: out.ToolUseID,
			Text:      out.Content,
			IsError:   out.IsError,
		}
	}
	return &Message{Role: User, Content: content}
}
