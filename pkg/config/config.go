package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Environment variables consulted for secrets.
const (
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvGoogleKey      = "GOOGLE_API_KEY"
	EnvPushoverToken  = "PUSHOVER_TOKEN"
	EnvPushoverUser   = "PUSHOVER_USER"
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_OWNER_CHAT_ID"
)

// Default models, matching what the site has always run with.
const (
	DefaultGeneratorModel  = "gpt-4o-mini"
	DefaultStructuredModel = "gemini-2.0-flash"
)

// Config defines the application configuration stored in config.json.
// It holds business-level settings: who the persona is, which providers
// answer and judge, and which channels and notification targets are active.
type Config struct {
	// Persona locates the grounding documents.
	Persona PersonaConfig `json:"persona"`
	// LLM groups providers by role.
	LLM LLMConfig `json:"llm"`
	// Channels maps channel identifiers ("web", "telegram") to raw JSON payloads
	// decoded by the matching channel factory.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// Notify configures owner notifications for tool side effects.
	Notify NotifyConfig `json:"notify"`
}

// PersonaConfig points at the documents the persona is grounded on.
type PersonaConfig struct {
	Name        string `json:"name"`
	SummaryPath string `json:"summary_path"`
	ProfilePath string `json:"profile_path"`          // LinkedIn export, PDF or text
	ResumePath  string `json:"resume_path,omitempty"` // optional
}

// LLMConfig lists provider groups per role.
type LLMConfig struct {
	// Generator answers the user and calls tools.
	Generator []ProviderGroupConfig `json:"generator"`
	// Evaluator judges candidate replies.
	Evaluator EvaluatorConfig `json:"evaluator"`
}

// EvaluatorConfig holds the two evaluator paths.
type EvaluatorConfig struct {
	// Enabled turns the quality gate on. When false every reply is accepted unevaluated.
	Enabled *bool `json:"enabled,omitempty"`
	// Structured is tried first and must support schema-constrained output.
	// Empty disables the structured path.
	Structured []ProviderGroupConfig `json:"structured,omitempty"`
	// JSONMode is the fallback path; its reply is parsed as JSON.
	// Defaults to the generator groups.
	JSONMode []ProviderGroupConfig `json:"json_mode,omitempty"`
}

// IsEnabled reports whether evaluation is on (default true).
func (e EvaluatorConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ProviderGroupConfig describes a set of models served by one provider type.
type ProviderGroupConfig struct {
	Type    string         `json:"type"` // "openai", "gemini", "ollama"
	APIKeys []string       `json:"api_keys,omitempty"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// NotifyConfig configures notification targets. Each is optional.
type NotifyConfig struct {
	Pushover *PushoverConfig       `json:"pushover,omitempty"`
	Telegram *TelegramNotifyConfig `json:"telegram,omitempty"`
}

// PushoverConfig holds Pushover credentials.
type PushoverConfig struct {
	Token string `json:"token"`
	User  string `json:"user"`
}

// TelegramNotifyConfig sends notifications to the owner's chat.
type TelegramNotifyConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// Validate ensures the configuration contains all mandatory fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Persona.Name) == "" {
		return fmt.Errorf("mandatory 'persona.name' is missing")
	}
	if c.Persona.SummaryPath == "" {
		return fmt.Errorf("mandatory 'persona.summary_path' is missing")
	}
	if c.Persona.ProfilePath == "" {
		return fmt.Errorf("mandatory 'persona.profile_path' is missing")
	}
	if len(c.LLM.Generator) == 0 {
		return fmt.Errorf("mandatory 'llm.generator' configuration is missing or empty")
	}
	for i, g := range c.LLM.Generator {
		if g.Type == "" || len(g.Models) == 0 {
			return fmt.Errorf("llm.generator[%d]: type and models are required", i)
		}
	}
	return nil
}

// ApplyEnv fills secrets from the environment and derives defaults that depend on them.
// Explicit values in config.json win over the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	fillKeys := func(groups []ProviderGroupConfig) {
		for i := range groups {
			if len(groups[i].APIKeys) > 0 {
				continue
			}
			var key string
			switch groups[i].Type {
			case "openai":
				key = getenv(EnvOpenAIKey)
			case "gemini":
				key = getenv(EnvGoogleKey)
			}
			if key != "" {
				groups[i].APIKeys = []string{key}
			}
		}
	}

	// Without explicit structured groups, a Google key enables the Gemini evaluator.
	if len(c.LLM.Evaluator.Structured) == 0 && getenv(EnvGoogleKey) != "" {
		c.LLM.Evaluator.Structured = []ProviderGroupConfig{{
			Type:   "gemini",
			Models: []string{DefaultStructuredModel},
		}}
	}
	if len(c.LLM.Evaluator.JSONMode) == 0 {
		c.LLM.Evaluator.JSONMode = append([]ProviderGroupConfig(nil), c.LLM.Generator...)
	}

	fillKeys(c.LLM.Generator)
	fillKeys(c.LLM.Evaluator.Structured)
	fillKeys(c.LLM.Evaluator.JSONMode)

	// A Gemini group without any key cannot start; drop it so the JSON-mode path serves alone.
	structured := c.LLM.Evaluator.Structured[:0]
	for _, g := range c.LLM.Evaluator.Structured {
		if g.Type == "gemini" && len(g.APIKeys) == 0 {
			continue
		}
		structured = append(structured, g)
	}
	c.LLM.Evaluator.Structured = structured

	if c.Notify.Pushover == nil && getenv(EnvPushoverToken) != "" && getenv(EnvPushoverUser) != "" {
		c.Notify.Pushover = &PushoverConfig{
			Token: getenv(EnvPushoverToken),
			User:  getenv(EnvPushoverUser),
		}
	}
	if c.Notify.Telegram == nil && getenv(EnvTelegramChatID) != "" {
		if chatID, err := strconv.ParseInt(getenv(EnvTelegramChatID), 10, 64); err == nil {
			c.Notify.Telegram = &TelegramNotifyConfig{ChatID: chatID}
		}
	}
	if c.Notify.Telegram != nil && c.Notify.Telegram.Token == "" {
		c.Notify.Telegram.Token = getenv(EnvTelegramToken)
	}
}

// SystemConfig defines engine-level technical parameters stored in system.json.
type SystemConfig struct {
	// MaxToolRounds bounds the generation/tool loop of a single generation.
	// Exceeding it fails the turn instead of looping forever.
	MaxToolRounds int `json:"max_tool_rounds"`
	// MaxRetries is the number of attempts per provider on transient errors.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the base delay between retries.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the HTTP timeout handed to provider transports. 0 disables it.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// TurnTimeoutMs bounds one whole turn including evaluation and regeneration. 0 disables it.
	TurnTimeoutMs int `json:"turn_timeout_ms"`
	// OllamaDefaultURL is used by ollama groups without base_url.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// TelegramMessageLimit is the maximum character count for one Telegram message.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// LogLevel sets the minimum severity: "debug", "info", "warn", "error".
	LogLevel string `json:"log_level"`
	// EnableTools advertises tools to the generator.
	EnableTools bool `json:"enable_tools"`
	// StrictUnknownTools fails the turn when the model calls an unregistered tool.
	// The default answers such calls with an empty result.
	StrictUnknownTools bool `json:"strict_unknown_tools"`
	// DataDir holds the append-only audit logs.
	DataDir string `json:"data_dir"`
	// HistoryDir persists per-session chat histories. Empty keeps them in memory.
	HistoryDir string `json:"history_dir"`
}

// DefaultSystemConfig returns safe defaults used when system.json is missing or corrupt.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxToolRounds:        8,
		MaxRetries:           3,
		RetryDelayMs:         500,
		LLMTimeoutMs:         120000,
		TurnTimeoutMs:        300000,
		OllamaDefaultURL:     "http://localhost:11434",
		TelegramMessageLimit: 4000,
		LogLevel:             "info",
		EnableTools:          true,
		StrictUnknownTools:   false,
		DataDir:              "data",
	}
}

// Load reads the application config from appPath and the system config from systemPath.
// The application config is mandatory; the system config falls back to defaults.
func Load(appPath, systemPath string) (*Config, *SystemConfig, error) {
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, LoadSystemConfig(systemPath), nil
}

// LoadSystemConfig attempts to load system settings and returns defaults if it fails.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig()
	}

	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultSystemConfig().MaxToolRounds
	}
	return cfg
}
