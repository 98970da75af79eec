package openailm

import (
	"time"

	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI clients.
type OpenAIFactory struct{}

// Create builds one client per configured model.
func (f *OpenAIFactory) Create(cfg config.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.ChatClient, error) {
	apiKey := ""
	if len(cfg.APIKeys) > 0 {
		apiKey = cfg.APIKeys[0]
	}
	timeout := time.Duration(sys.LLMTimeoutMs) * time.Millisecond

	clients := make([]llm.ChatClient, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		clients = append(clients, NewClient("openai", apiKey, model, cfg.BaseURL, timeout, cfg.Options))
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
