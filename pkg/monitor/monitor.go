package monitor

import "time"

// Message types shown by monitors.
const (
	MessageUser      = "USER"
	MessageAssistant = "ASSISTANT"
	MessageError     = "ERROR"
)

// MonitorMessage is one line of conversation traffic.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // MessageUser, MessageAssistant or MessageError
	ChannelID   string
	Username    string
	Content     string
}

// Monitor mirrors conversation traffic somewhere a human can watch it.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
