package gateway

import (
	"context"
	"fmt"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/monitor"
)

// GatewayBuilder assembles a GatewayManager from pre-built parts and starts it.
type GatewayBuilder struct {
	gw       *GatewayManager
	monitor  monitor.Monitor
	handler  api.MessageProcessor
	channels []api.Channel
}

// NewGatewayBuilder creates a builder around a fresh GatewayManager.
func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{
		gw: NewGatewayManager(),
	}
}

// WithMonitor injects a monitor. It is started by Build.
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

// WithChannel adds pre-built channels.
func (b *GatewayBuilder) WithChannel(channels ...api.Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// WithHandler injects the message processor. If it implements
// api.ResponderAware it receives the gateway as its responder.
func (b *GatewayBuilder) WithHandler(h api.MessageProcessor) *GatewayBuilder {
	b.handler = h
	return b
}

// Build wires everything together and starts the channels under ctx.
func (b *GatewayBuilder) Build(ctx context.Context) (*GatewayManager, error) {
	if len(b.channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}

	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	for _, c := range b.channels {
		b.gw.Register(c)
	}

	if b.handler != nil {
		if setter, ok := b.handler.(api.ResponderAware); ok {
			setter.SetResponder(b.gw)
		}
		b.gw.SetMessageHandler(b.handler.OnMessage)
	}

	if err := b.gw.StartAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}

	return b.gw, nil
}
