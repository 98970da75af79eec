package ollama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type OllamaClient struct {
	client  *api.Client
	model   string
	options map[string]any
}

// NewOllamaClient creates a client against baseURL. A zero timeout disables the HTTP timeout.
func NewOllamaClient(model, baseURL string, timeout time.Duration, options map[string]any) (*OllamaClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	httpClient := &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
		Timeout:   timeout,
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:  api.NewClient(u, httpClient),
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

func (o *OllamaClient) Model() string {
	return o.model
}

// Chat sends a non-streaming chat request.
func (o *OllamaClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, err
	}

	stream := false
	apiReq := &api.ChatRequest{
		Model:    o.model,
		Messages: convertMessages(req.Messages),
		Options:  o.options,
		Tools:    tools,
		Stream:   &stream,
	}
	if f := req.ResponseFormat; f != nil {
		switch f.Type {
		case llm.FormatJSONSchema:
			raw, err := json.Marshal(f.Schema)
			if err != nil {
				return nil, fmt.Errorf("marshal response schema: %w", err)
			}
			apiReq.Format = raw
		case llm.FormatJSONObject:
			apiReq.Format = []byte(`"json"`)
		}
	}

	var final api.ChatResponse
	var content strings.Builder
	var calls []api.ToolCall
	err = o.client.Chat(ctx, apiReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		calls = append(calls, resp.Message.ToolCalls...)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	msg := llm.Message{Role: llm.RoleAssistant, Content: content.String()}
	for _, tc := range calls {
		args, err := json.MarshalToString(tc.Function.Arguments)
		if err != nil {
			slog.WarnContext(ctx, "Failed to marshal tool call arguments", "provider", "ollama", "error", err)
			args = "{}"
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{ID: id, Name: tc.Function.Name, Arguments: args})
	}

	out := &llm.ChatResponse{
		Message: msg,
		Model:   o.model,
		Usage: &llm.Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
			StopReason:       final.DoneReason,
		},
	}
	switch {
	case msg.HasToolCalls():
		out.FinishReason = llm.FinishReasonToolCalls
	case final.DoneReason == llm.FinishReasonLength:
		out.FinishReason = llm.FinishReasonLength
	default:
		out.FinishReason = llm.FinishReasonStop
	}
	llm.LogUsage(ctx, o.Provider(), o.model, out.Usage)

	if !msg.HasToolCalls() && strings.TrimSpace(msg.Content) == "" {
		return nil, llm.ErrEmptyResponse
	}
	return out, nil
}

// convertTools goes through JSON so the declarations follow whatever shape api.Tool expects.
func convertTools(decls []llm.ToolDeclaration) ([]api.Tool, error) {
	if len(decls) == 0 {
		return nil, nil
	}
	wire := make([]map[string]any, 0, len(decls))
	for _, d := range decls {
		wire = append(wire, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  d.Parameters,
			},
		})
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal tools: %w", err)
	}
	var tools []api.Tool
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("convert tools: %w", err)
	}
	return tools, nil
}

func convertMessages(messages []llm.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		msg := api.Message{
			Role:    m.Role,
			Content: m.Content,
		}

		if m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				var args api.ToolCallFunctionArguments
				if err := json.UnmarshalFromString(tc.Arguments, &args); err != nil {
					slog.Warn("Failed to convert tool arguments for history", "provider", "ollama", "error", err)
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
		}

		if m.Role == llm.RoleTool {
			msg.ToolName = m.ToolName
			msg.ToolCallID = m.ToolCallID
		}

		out = append(out, msg)
	}

	return out
}

func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "overloaded") ||
		strings.Contains(errMsg, "server busy")
}

// JSONFixingRoundTripper strips invalid escape sequences some local models emit
// inside JSON strings before the api package decodes them.
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			copy(p, fixed)
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
