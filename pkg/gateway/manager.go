package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/giovanni-lunetta/giovanni-site/pkg/monitor"
)

// GatewayManager owns the registered channels and routes their messages to one handler.
type GatewayManager struct {
	channels   map[string]Channel
	msgHandler MessageHandler
	monitor    monitor.Monitor
	baseCtx    context.Context
	mu         sync.RWMutex
}

// NewGatewayManager creates an empty gateway.
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]Channel),
		baseCtx:  context.Background(),
	}
}

// SetMessageHandler sets the function every inbound message is handed to.
func (g *GatewayManager) SetMessageHandler(handler MessageHandler) {
	g.msgHandler = handler
}

// SetMonitor sets the monitor that mirrors conversation traffic.
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a channel. A channel with the same id replaces the previous one.
func (g *GatewayManager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel returns the channel registered under id.
func (g *GatewayManager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll starts every registered channel. Handlers run under ctx, so
// canceling it aborts turns still in flight.
func (g *GatewayManager) StartAll(ctx context.Context) error {
	g.mu.Lock()
	g.baseCtx = ctx
	g.mu.Unlock()

	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll stops every registered channel.
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
}

// SendReply delivers a final reply through the session's channel.
func (g *GatewayManager) SendReply(session SessionContext, content string) error {
	slog.Debug("Reply", "channel", session.ChannelID, "user", session.Username, "length", len(content))
	g.mirror(monitor.MessageAssistant, session.ChannelID, session.Username, content)

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.Send(session, content)
}

// SendError reports a failed turn. Channels without a dedicated error
// rendering receive it as a normal message.
func (g *GatewayManager) SendError(session SessionContext, content string) error {
	g.mirror(monitor.MessageError, session.ChannelID, session.Username, content)

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	if ec, ok := c.(ErrorChannel); ok {
		return ec.SendError(session, content)
	}
	return c.Send(session, content)
}

// SendSignal forwards a control signal. Channels that cannot display it ignore it.
func (g *GatewayManager) SendSignal(session SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	if sc, ok := c.(SignalingChannel); ok {
		return sc.SendSignal(session, signal)
	}
	return nil
}

// OnMessage implements ChannelContext. It is called by channels for every inbound message.
func (g *GatewayManager) OnMessage(channelID string, msg *UnifiedMessage) {
	slog.Debug("Received message", "channel", channelID, "user", msg.Session.Username, "user_id", msg.Session.UserID)
	g.mirror(monitor.MessageUser, channelID, msg.Session.Username, msg.Content)

	if g.msgHandler == nil {
		slog.Warn("No message handler set, dropping message", "channel", channelID)
		return
	}

	g.mu.RLock()
	ctx := g.baseCtx
	g.mu.RUnlock()
	g.msgHandler(ctx, msg)
}

func (g *GatewayManager) mirror(kind, channelID, username, content string) {
	if g.monitor == nil {
		return
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: kind,
		ChannelID:   channelID,
		Username:    username,
		Content:     content,
	})
}
