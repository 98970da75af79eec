package web

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/channels"
)

// WebFactory builds the web channel.
type WebFactory struct{}

func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	cfg := WebConfig{Port: DefaultPort}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("web channel requires a session manager")
	}

	return NewWebChannel(cfg, deps.Sessions, deps.Contacts, deps.Gatherer), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
