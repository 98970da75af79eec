package openailm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// Client is a wrapper around the official OpenAI Go SDK using the Responses API.
type Client struct {
	client   *openai.Client
	provider string
	model    string
	options  map[string]any
}

// NewClient creates a new OpenAI client. A zero timeout leaves the SDK default in place.
func NewClient(provider, apiKey, model, baseURL string, timeout time.Duration, options map[string]any) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// FallbackClient owns retries.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout")
}

// Chat sends one Responses API request and blocks for the answer.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertMessages(req.Messages),
		},
	}
	if tools := convertTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	if req.ResponseFormat != nil {
		params.Text = convertFormat(req.ResponseFormat)
	}

	var opts []option.RequestOption
	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_output_tokens", int(maxTok)))
	}

	resp, err := c.client.Responses.New(ctx, params, opts...)
	if err != nil {
		return nil, fmt.Errorf("openai responses: %w", err)
	}

	out, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}
	if out.Model == "" {
		out.Model = c.model
	}
	llm.LogUsage(ctx, c.provider, out.Model, out.Usage)
	return out, nil
}

func convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleSystem))
		case llm.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
		case llm.RoleAssistant:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(tc.Arguments, tc.ID, tc.Name))
			}
		case llm.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(m.ToolCallID, m.Content))
		}
	}

	return items
}

func convertTools(decls []llm.ToolDeclaration) []responses.ToolUnionParam {
	if len(decls) == 0 {
		return nil
	}
	tools := make([]responses.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		tools = append(tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

func convertFormat(f *llm.ResponseFormat) responses.ResponseTextConfigParam {
	switch f.Type {
	case llm.FormatJSONSchema:
		return responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   f.Name,
					Schema: f.Schema,
					Strict: openai.Bool(f.Strict),
				},
			},
		}
	case llm.FormatJSONObject:
		return responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		}
	default:
		return responses.ResponseTextConfigParam{}
	}
}

func parseResponse(resp *responses.Response) (*llm.ChatResponse, error) {
	msg := llm.Message{Role: llm.RoleAssistant}

	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		id := fc.CallID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        id,
			Name:      fc.Name,
			Arguments: fc.Arguments,
		})
	}
	msg.Content = resp.OutputText()

	out := &llm.ChatResponse{
		Message: msg,
		Model:   resp.Model,
	}

	switch {
	case msg.HasToolCalls():
		out.FinishReason = llm.FinishReasonToolCalls
	case resp.Status == responses.ResponseStatusIncomplete:
		out.FinishReason = llm.FinishReasonLength
	default:
		out.FinishReason = llm.FinishReasonStop
	}

	if resp.Usage.TotalTokens > 0 {
		out.Usage = &llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			ThoughtsTokens:   int(resp.Usage.OutputTokensDetails.ReasoningTokens),
			CachedTokens:     int(resp.Usage.InputTokensDetails.CachedTokens),
			StopReason:       out.FinishReason,
		}
	}

	if !msg.HasToolCalls() && strings.TrimSpace(msg.Content) == "" {
		return nil, llm.ErrEmptyResponse
	}
	return out, nil
}
