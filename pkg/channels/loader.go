package channels

import (
	"log/slog"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
)

// LoadFromConfig builds every channel named in configs. Unknown names and
// channels that fail to build are logged and skipped.
func LoadFromConfig(configs map[string]jsoniter.RawMessage, deps Deps) []api.Channel {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []api.Channel
	for _, name := range names {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(configs[name], deps)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}
		if channel == nil {
			continue
		}

		out = append(out, channel)
		slog.Info("Channel registered", "name", name)
	}
	return out
}
