package gemini

import (
	"context"
	"log/slog"
	"time"

	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// GeminiFactory handles creation of Gemini clients.
type GeminiFactory struct{}

// Create builds the cartesian product of models and keys, models first.
func (f *GeminiFactory) Create(cfg config.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.ChatClient, error) {
	timeout := time.Duration(sys.LLMTimeoutMs) * time.Millisecond

	var clients []llm.ChatClient
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := NewGeminiClient(context.Background(), key, model, cfg.BaseURL, timeout, cfg.Options)
			if err != nil {
				slog.Error("Failed to create Gemini client", "model", model, "error", err)
				continue
			}
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
