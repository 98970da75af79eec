package channels

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// Deps are the shared resources a channel may need.
type Deps struct {
	Sessions *llm.SessionManager
	System   *config.SystemConfig
	Contacts api.ContactRecorder // backs the web contact form; may be nil
	Gatherer prometheus.Gatherer // served on /metrics; may be nil
}

// ChannelFactory builds a channel from its raw config.json payload.
type ChannelFactory interface {
	Create(rawConfig jsoniter.RawMessage, deps Deps) (api.Channel, error)
}

var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel registers a factory under name. Called from init().
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory returns the factory registered under name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
