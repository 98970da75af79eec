package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is used for all JSON handling inside package llm.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyResponse is returned by providers when the model produced neither text nor tool calls.
var ErrEmptyResponse = errors.New("llm: empty response")

// Usage is the provider-neutral token accounting of one call.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage prints token usage of a single call at debug level.
func LogUsage(ctx context.Context, provider, model string, usage *Usage) {
	if usage == nil {
		return
	}
	slog.DebugContext(ctx, "LLM usage",
		"provider", provider,
		"model", model,
		"prompt", usage.PromptTokens,
		"completion", usage.CompletionTokens,
		"total", usage.TotalTokens,
		"thoughts", usage.ThoughtsTokens,
		"cached", usage.CachedTokens,
		"stop_reason", usage.StopReason,
	)
}

// ToolDeclaration advertises a callable tool to the model.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema of the argument object
}

// ResponseFormat asks the provider for a specific output shape.
type ResponseFormat struct {
	Type   string         `json:"type"`             // FormatText, FormatJSONObject or FormatJSONSchema
	Name   string         `json:"name,omitempty"`   // schema name (json_schema only)
	Schema map[string]any `json:"schema,omitempty"` // JSON schema (json_schema only)
	Strict bool           `json:"strict,omitempty"` // reject keys outside the schema
}

// ChatRequest is one outbound chat-completion request.
type ChatRequest struct {
	Messages       []Message
	Tools          []ToolDeclaration
	ResponseFormat *ResponseFormat
}

// ChatResponse is the single assistant message produced by a request.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        *Usage
	Model        string // model that produced the answer
}

// NeedsToolExecution reports whether the model stopped to request tools.
func (r *ChatResponse) NeedsToolExecution() bool {
	return r.FinishReason == FinishReasonToolCalls && r.Message.HasToolCalls()
}

// ChatClient is the provider-neutral chat-completion client.
type ChatClient interface {
	// Chat sends the request and blocks until the provider answers.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Provider returns the provider type, e.g. "openai".
	Provider() string

	// Model returns the model identifier used for requests.
	Model() string

	// IsTransientError reports whether err is worth retrying (503, rate limit, ...).
	IsTransientError(err error) bool
}

// FallbackClient tries several clients in order, retrying transient errors.
type FallbackClient struct {
	Clients    []ChatClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider(), "model", client.Model())
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "index", i+1, "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			resp, err := client.Chat(ctx, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "index", i+1, "error", err)
				continue
			}

			slog.ErrorContext(ctx, "Provider failed", "index", i+1, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// Provider reports the first client's provider.
func (f *FallbackClient) Provider() string {
	if len(f.Clients) == 0 {
		return "fallback"
	}
	return f.Clients[0].Provider()
}

// Model reports the first client's model. ChatResponse.Model names the one that answered.
func (f *FallbackClient) Model() string {
	if len(f.Clients) == 0 {
		return ""
	}
	return f.Clients[0].Model()
}

// IsTransientError treats an exhausted fallback chain as permanent.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
