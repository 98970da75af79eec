package llm

import (
	"strings"
	"time"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

//----------------------------------------------------------------
// Message
//----------------------------------------------------------------

// Message is one entry of a conversation.
type Message struct {
	Role      string `json:"role"`    // "system", "user", "assistant", "tool"
	Content   string `json:"content"` // plain text content
	Timestamp int64  `json:"timestamp,omitempty"`

	// ToolCalls holds the tool invocations requested by the model (role: assistant only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a tool result with the call it answers (role: tool only).
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is the name of the tool that produced this result (role: tool only).
	// Some providers (Gemini, Ollama) address results by name instead of id.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall is a model-requested invocation of a registered tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object

	// Meta carries provider specific data needed to replay the call
	// (e.g. Gemini thought signatures). Never serialized.
	Meta map[string]any `json:"-"`
}

// Turn is the role/content pair exchanged with the outer UI layer.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

//----------------------------------------------------------------
// Helper Functions
//----------------------------------------------------------------

// NewTextMessage builds a plain text message.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage builds a user message.
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewToolResultMessage builds the answer to a single tool call.
func NewToolResultMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Timestamp:  time.Now().Unix(),
	}
}

// HasToolCalls reports whether the message requests tool execution.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// NormalizeHistory reduces UI history entries to role/content pairs.
// Missing roles default to "user".
func NormalizeHistory(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		role := strings.TrimSpace(t.Role)
		if role == "" {
			role = RoleUser
		}
		out = append(out, Message{Role: role, Content: t.Content})
	}
	return out
}

// ToTurns strips a conversation down to role/content pairs.
func ToTurns(messages []Message) []Turn {
	out := make([]Turn, 0, len(messages))
	for _, m := range messages {
		out = append(out, Turn{Role: m.Role, Content: m.Content})
	}
	return out
}
