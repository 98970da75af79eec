package telegram

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/channels"
	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory builds the Telegram channel.
type TelegramFactory struct{}

func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	var tgCfg TelegramConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
			return nil, fmt.Errorf("failed to parse telegram config: %w", err)
		}
	}
	if tgCfg.Token == "" {
		tgCfg.Token = os.Getenv(config.EnvTelegramToken)
	}
	if tgCfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}

	limit := config.DefaultSystemConfig().TelegramMessageLimit
	if deps.System != nil && deps.System.TelegramMessageLimit > 0 {
		limit = deps.System.TelegramMessageLimit
	}

	ch, err := NewTelegramChannel(tgCfg, limit)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
