package api

import (
	"context"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// SignalThinking is sent to the user's channel while a turn is running.
const SignalThinking = "thinking"

// Channel is a chat platform connected to the gateway (web socket, Telegram, ...).
type Channel interface {
	// ID returns the unique platform identifier, e.g. "web".
	ID() string

	// Start begins receiving messages and forwards them to ctx.
	Start(ctx ChannelContext) error

	// Stop releases the platform connection.
	Stop() error

	// Send delivers a final reply to the session.
	Send(session SessionContext, message string) error
}

// SignalingChannel is implemented by channels that can show transient state
// such as a typing indicator.
type SignalingChannel interface {
	SendSignal(session SessionContext, signal string) error
}

// ErrorChannel is implemented by channels that render failures differently
// from replies. Channels without it receive errors through Send.
type ErrorChannel interface {
	SendError(session SessionContext, message string) error
}

// MessageResponder routes outbound traffic back to the originating channel.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	SendError(session SessionContext, content string) error
	SendSignal(session SessionContext, signal string) error
}

// ChannelContext is what a channel sees of the gateway.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// UnifiedMessage is a platform-independent inbound chat message.
type UnifiedMessage struct {
	Session SessionContext
	Content string
	Raw     any // platform payload, for debugging only
}

// SessionContext identifies who sent a message and where to answer.
type SessionContext struct {
	ChannelID string
	UserID    string
	ChatID    string
	Username  string
}

// Key is the history key of the conversation the session belongs to.
func (s SessionContext) Key() string {
	return s.ChannelID + "_" + s.ChatID
}

// MessageHandler processes one inbound message.
type MessageHandler func(ctx context.Context, msg *UnifiedMessage)

// MessageProcessor is the object form of MessageHandler.
type MessageProcessor interface {
	OnMessage(ctx context.Context, msg *UnifiedMessage)
}

// ResponderAware processors receive the gateway's responder when wired by the builder.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}

// Responder turns a user message and its prior turns into the final reply.
// agent.TurnController implements it.
type Responder interface {
	Respond(ctx context.Context, message string, history []llm.Turn) (string, error)
}

// ContactRecorder captures contact details submitted outside the chat.
type ContactRecorder interface {
	SubmitContactForm(ctx context.Context, email, name, notes string) (string, error)
}
