package llm

import (
	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
)

// ProviderFactory builds clients for one provider group of the config.
type ProviderFactory interface {
	// Create builds one atomic client per configured model.
	Create(group config.ProviderGroupConfig, system *config.SystemConfig) ([]ChatClient, error)
}

// providerRegistry maps a provider type to its factory.
var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider registers a provider factory. Called from init().
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory returns the factory registered for name.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
