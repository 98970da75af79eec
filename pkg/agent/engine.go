package agent

import (
	"context"
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/persona"
	"github.com/giovanni-lunetta/giovanni-site/pkg/tools"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMaxToolRounds bounds the tool loop when the engine is built without a limit.
const DefaultMaxToolRounds = 8

// ToolRegistry is the view of the tool registry the engine needs.
type ToolRegistry interface {
	Resolve(name string) (tools.Tool, bool)
	Schemas() []llm.ToolDeclaration
	Invoke(ctx context.Context, call llm.ToolCall) (string, error)
}

// Engine drives the generation/tool loop against the primary model.
type Engine struct {
	client        llm.ChatClient
	tools         ToolRegistry
	maxToolRounds int
	advertise     bool
	metrics       *Metrics
}

// EngineOptions tunes an Engine.
type EngineOptions struct {
	// MaxToolRounds is the number of tool rounds allowed per generation.
	MaxToolRounds int
	// DisableTools stops advertising tools. Calls the model makes anyway are still answered.
	DisableTools bool
	Metrics      *Metrics
}

// NewEngine creates an engine. registry may be nil when no tools are registered.
func NewEngine(client llm.ChatClient, registry ToolRegistry, opts EngineOptions) *Engine {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	return &Engine{
		client:        client,
		tools:         registry,
		maxToolRounds: opts.MaxToolRounds,
		advertise:     !opts.DisableTools && registry != nil,
		metrics:       opts.Metrics,
	}
}

// Generate produces the final assistant text for message, resolving tool calls on the way.
// history must hold role/content pairs only.
func (e *Engine) Generate(ctx context.Context, systemPrompt string, history []llm.Message, message string) (string, error) {
	msgs := persona.Conversation(systemPrompt, history, message)

	var decls []llm.ToolDeclaration
	if e.advertise {
		decls = e.tools.Schemas()
	}

	for rounds := 0; ; rounds++ {
		resp, err := e.client.Chat(ctx, &llm.ChatRequest{Messages: msgs, Tools: decls})
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}

		if !resp.NeedsToolExecution() {
			if resp.FinishReason == llm.FinishReasonLength {
				slog.WarnContext(ctx, "Reply truncated by length limit", "model", resp.Model)
			}
			return resp.Message.Content, nil
		}

		if rounds >= e.maxToolRounds {
			slog.ErrorContext(ctx, "Model kept requesting tools", "rounds", rounds, "max", e.maxToolRounds)
			return "", fmt.Errorf("%w: %d rounds", ErrToolRoundsExceeded, e.maxToolRounds)
		}

		calls, results, err := e.resolveRound(ctx, resp.Message.ToolCalls)
		if err != nil {
			return "", err
		}
		assistant := resp.Message
		assistant.ToolCalls = calls
		msgs = append(msgs, assistant)
		msgs = append(msgs, results...)
	}
}

// resolveRound answers every call of one round, in order, once per call id.
// It returns the calls it answered so the echoed assistant message pairs one to one with the results.
func (e *Engine) resolveRound(ctx context.Context, calls []llm.ToolCall) ([]llm.ToolCall, []llm.Message, error) {
	kept := make([]llm.ToolCall, 0, len(calls))
	results := make([]llm.Message, 0, len(calls))
	answered := make(map[string]struct{}, len(calls))

	for _, call := range calls {
		if _, dup := answered[call.ID]; dup {
			slog.WarnContext(ctx, "Duplicate tool call id in one round, skipping", "tool", call.Name, "call_id", call.ID)
			continue
		}
		answered[call.ID] = struct{}{}

		content, err := e.resolveToolCall(ctx, call)
		if err != nil {
			return nil, nil, err
		}
		kept = append(kept, call)
		results = append(results, llm.NewToolResultMessage(call, content))
	}
	return kept, results, nil
}

// resolveToolCall runs a single call. Handler failures and panics become an error
// result the model can read; only a strict unknown-tool policy fails the turn.
func (e *Engine) resolveToolCall(ctx context.Context, call llm.ToolCall) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Tool execution panicked", "tool", call.Name, "error", r)
			e.metrics.recordToolCall(call.Name, ToolStatusError)
			result, err = toolError("internal processing panic"), nil
		}
	}()

	if e.tools == nil {
		e.metrics.recordToolCall(ToolStatusUnknown, ToolStatusUnknown)
		return tools.EmptyResult, nil
	}
	if _, ok := e.tools.Resolve(call.Name); !ok {
		// Unregistered names are model-controlled; keep them out of metric labels.
		e.metrics.recordToolCall(ToolStatusUnknown, ToolStatusUnknown)
		return e.tools.Invoke(ctx, call)
	}

	out, err := e.tools.Invoke(ctx, call)
	if err != nil {
		slog.ErrorContext(ctx, "Tool execution error", "tool", call.Name, "call_id", call.ID, "error", err)
		e.metrics.recordToolCall(call.Name, ToolStatusError)
		return toolError(err.Error()), nil
	}
	e.metrics.recordToolCall(call.Name, ToolStatusOK)
	return out, nil
}

func toolError(msg string) string {
	out, err := json.MarshalToString(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"tool failed"}`
	}
	return out
}
