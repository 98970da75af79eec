package llm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
)

// NewFromConfig builds a client from an ordered list of provider groups.
// A single client without retries is returned as is; otherwise clients are wrapped in a FallbackClient.
func NewFromConfig(groups []config.ProviderGroupConfig, system *config.SystemConfig) (ChatClient, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("no provider groups configured")
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	var allAtomicClients []ChatClient
	for _, group := range groups {
		slog.Info("Loading LLM group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type)
			continue
		}

		clients, err := factory.Create(group, system)
		if err != nil {
			slog.Warn("Failed to create clients", "type", group.Type, "error", err)
			continue
		}

		allAtomicClients = append(allAtomicClients, clients...)
	}

	if len(allAtomicClients) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	slog.Info("LLM clients initialized", "count", len(allAtomicClients))

	if len(allAtomicClients) == 1 && system.MaxRetries <= 1 {
		return allAtomicClients[0], nil
	}

	return &FallbackClient{
		Clients:    allAtomicClients,
		MaxRetries: system.MaxRetries,
		RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
	}, nil
}
