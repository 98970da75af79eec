package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// syntheticIDPrefix marks call ids minted locally because the API returned none.
// They are never echoed back to Gemini.
const syntheticIDPrefix = "gemini-call-"

// metaPart keeps the original function call part so thought signatures survive the round trip.
const metaPart = "gemini_part"

type GeminiClient struct {
	client  *genai.Client
	model   string
	options map[string]any
}

// NewGeminiClient creates a client for the Gemini API. baseURL is only set in tests.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, timeout time.Duration, options map[string]any) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

func (g *GeminiClient) Model() string {
	return g.model
}

// Chat sends one GenerateContent request.
func (g *GeminiClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	contents, systemInstruction := convertMessages(req.Messages)

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(req.Tools),
	}
	if t, ok := g.options["temperature"].(float64); ok {
		genCfg.Temperature = genai.Ptr(float32(t))
	}
	if f := req.ResponseFormat; f != nil && f.Type != llm.FormatText {
		genCfg.ResponseMIMEType = "application/json"
		if f.Type == llm.FormatJSONSchema && f.Schema != nil {
			genCfg.ResponseJsonSchema = f.Schema
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	out, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}
	if out.Model == "" {
		out.Model = g.model
	}
	llm.LogUsage(ctx, g.Provider(), out.Model, out.Usage)
	return out, nil
}

// convertMessages converts the conversation to GenAI contents plus the system instruction.
func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
			}

		case llm.RoleTool:
			fr := &genai.FunctionResponse{
				Name:     msg.ToolName,
				Response: toolResponse(msg.Content),
			}
			if !strings.HasPrefix(msg.ToolCallID, syntheticIDPrefix) {
				fr.ID = msg.ToolCallID
			}
			part := &genai.Part{FunctionResponse: fr}
			// Consecutive results of one round share a single user turn.
			if n := len(contents); n > 0 && contents[n-1].Role == genai.RoleUser && contents[n-1].Parts[0].FunctionResponse != nil {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})

		case llm.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				if orig, ok := tc.Meta[metaPart].(*genai.Part); ok {
					parts = append(parts, orig)
					continue
				}
				var args map[string]any
				_ = json.UnmarshalFromString(tc.Arguments, &args)
				fc := &genai.FunctionCall{Name: tc.Name, Args: args}
				if !strings.HasPrefix(tc.ID, syntheticIDPrefix) {
					fc.ID = tc.ID
				}
				parts = append(parts, &genai.Part{FunctionCall: fc})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		default:
			if msg.Content != "" {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
			}
		}
	}

	return contents, systemInstruction
}

// toolResponse wraps a JSON object result as-is and anything else under "output".
func toolResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.UnmarshalFromString(content, &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": content}
}

func convertTools(decls []llm.ToolDeclaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func parseResponse(resp *genai.GenerateContentResponse) (*llm.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, llm.ErrEmptyResponse
	}
	candidate := resp.Candidates[0]

	msg := llm.Message{Role: llm.RoleAssistant}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = syntheticIDPrefix + uuid.NewString()
			}
			args, _ := json.MarshalToString(part.FunctionCall.Args)
			if part.FunctionCall.Args == nil {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: args,
				Meta:      map[string]any{metaPart: part},
			})
		}
	}
	msg.Content = text.String()

	out := &llm.ChatResponse{
		Message: msg,
		Model:   resp.ModelVersion,
	}
	switch {
	case msg.HasToolCalls():
		out.FinishReason = llm.FinishReasonToolCalls
	case candidate.FinishReason == genai.FinishReasonMaxTokens:
		out.FinishReason = llm.FinishReasonLength
	default:
		out.FinishReason = llm.FinishReasonStop
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
			ThoughtsTokens:   int(u.ThoughtsTokenCount),
			CachedTokens:     int(u.CachedContentTokenCount),
			StopReason:       string(candidate.FinishReason),
		}
	}

	if !msg.HasToolCalls() && strings.TrimSpace(msg.Content) == "" {
		return nil, llm.ErrEmptyResponse
	}
	return out, nil
}

// IsTransientError treats rate limits and server-side failures as retryable.
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "deadline exceeded")
}
