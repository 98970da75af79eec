package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/giovanni-lunetta/giovanni-site/pkg/agent"
	"github.com/giovanni-lunetta/giovanni-site/pkg/audit"
	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	_ "github.com/giovanni-lunetta/giovanni-site/pkg/llm/autoload"
	"github.com/giovanni-lunetta/giovanni-site/pkg/monitor"
	"github.com/giovanni-lunetta/giovanni-site/pkg/notify"
	"github.com/giovanni-lunetta/giovanni-site/pkg/persona"
	"github.com/giovanni-lunetta/giovanni-site/pkg/tools"
)

// app is the fully wired persona: grounding, providers, tools and turn controller.
type app struct {
	cfg       *config.Config
	sys       *config.SystemConfig
	level     *slog.LevelVar
	grounding *persona.GroundingContext
	sessions  *llm.SessionManager
	recorders *tools.Recorders
	turns     *agent.TurnController
	registry  *prometheus.Registry
}

func loadApp(opts *rootOptions) (*app, error) {
	level := monitor.SetupSlog("info")

	if opts.envPath != "" {
		if err := godotenv.Overload(opts.envPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("No dotenv file", "path", opts.envPath)
			} else {
				slog.Warn("Failed to load dotenv file", "path", opts.envPath, "error", err)
			}
		}
	}

	cfg, sys, err := config.Load(opts.configPath, opts.systemPath)
	if err != nil {
		return nil, err
	}
	level.Set(monitor.ParseLevel(sys.LogLevel))

	grounding, err := persona.Load(cfg.Persona)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := agent.NewMetrics(registry)

	auditLog := audit.BestEffort{Recorder: audit.NewLog(sys.DataDir)}
	recorders := &tools.Recorders{
		Notifier: newNotifier(cfg.Notify),
		Audit:    auditLog,
	}
	toolRegistry, err := tools.NewDefaultRegistry(recorders, sys.StrictUnknownTools)
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	generator, err := llm.NewFromConfig(cfg.LLM.Generator, sys)
	if err != nil {
		return nil, fmt.Errorf("failed to init generator: %w", err)
	}
	engine := agent.NewEngine(generator, toolRegistry, agent.EngineOptions{
		MaxToolRounds: sys.MaxToolRounds,
		DisableTools:  !sys.EnableTools,
		Metrics:       metrics,
	})

	judge, err := newJudge(cfg, sys, grounding, auditLog, metrics)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		sys:       sys,
		level:     level,
		grounding: grounding,
		sessions:  llm.NewSessionManager(sys.HistoryDir),
		recorders: recorders,
		turns:     agent.NewTurnController(grounding, engine, judge, metrics),
		registry:  registry,
	}, nil
}

// applySystem takes the hot-reloadable parts of a changed system.json.
// Everything else needs a restart.
func (a *app) applySystem(sys *config.SystemConfig) {
	a.level.Set(monitor.ParseLevel(sys.LogLevel))
	slog.Info("System config reloaded", "log_level", sys.LogLevel)
}

func (a *app) turnTimeout() time.Duration {
	return time.Duration(a.sys.TurnTimeoutMs) * time.Millisecond
}

// newNotifier fans out to every configured target. Delivery failures are
// logged and never fail a tool call.
func newNotifier(cfg config.NotifyConfig) notify.Notifier {
	var targets notify.Multi
	if p := cfg.Pushover; p != nil && p.Token != "" && p.User != "" {
		targets = append(targets, notify.NewPushover(p.Token, p.User))
	}
	if tg := cfg.Telegram; tg != nil && tg.Token != "" && tg.ChatID != 0 {
		n, err := notify.NewTelegram(tg.Token, tg.ChatID)
		if err != nil {
			slog.Warn("Telegram notifier disabled", "error", err)
		} else {
			targets = append(targets, n)
		}
	}

	if len(targets) == 0 {
		slog.Warn("No notification target configured, tool notifications are dropped")
		return notify.Nop{}
	}
	return notify.BestEffort{Notifier: targets}
}

// newJudge builds the evaluator, or returns nil when evaluation is disabled.
// A structured group that fails to start leaves the JSON-mode path serving alone.
func newJudge(cfg *config.Config, sys *config.SystemConfig, gc *persona.GroundingContext, rec audit.Recorder, metrics *agent.Metrics) (agent.Judge, error) {
	if !cfg.LLM.Evaluator.IsEnabled() {
		slog.Info("Evaluator disabled, replies are sent unevaluated")
		return nil, nil
	}

	secondary, err := llm.NewFromConfig(cfg.LLM.Evaluator.JSONMode, sys)
	if err != nil {
		return nil, fmt.Errorf("failed to init json-mode evaluator: %w", err)
	}

	var primary llm.ChatClient
	if len(cfg.LLM.Evaluator.Structured) > 0 {
		primary, err = llm.NewFromConfig(cfg.LLM.Evaluator.Structured, sys)
		if err != nil {
			slog.Warn("Structured evaluator unavailable, using json mode only", "error", err)
		}
	}

	ev, err := agent.NewEvaluator(gc, primary, secondary, rec, metrics)
	if err != nil {
		return nil, err
	}
	return ev, nil
}
