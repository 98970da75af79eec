package ollama

import (
	"log/slog"
	"time"

	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// OllamaFactory handles creation of Ollama clients.
type OllamaFactory struct{}

// Create builds one client per model. Groups without base_url use the system default.
func (f *OllamaFactory) Create(cfg config.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.ChatClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sys.OllamaDefaultURL
	}
	timeout := time.Duration(sys.LLMTimeoutMs) * time.Millisecond

	var clients []llm.ChatClient
	for _, model := range cfg.Models {
		client, err := NewOllamaClient(model, baseURL, timeout, cfg.Options)
		if err != nil {
			slog.Error("Failed to create Ollama client", "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
