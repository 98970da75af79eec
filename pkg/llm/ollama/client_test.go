package ollama

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

func newTestClient(t *testing.T, body string, captured *map[string]any) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if captured != nil {
			require.NoError(t, json.Unmarshal(raw, captured))
		}
		require.NotContains(t, body, "\n", "chat responses are newline-delimited JSON")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body+"\n")
	}))
	t.Cleanup(srv.Close)

	c, err := NewOllamaClient("llama3.2", srv.URL, 0, nil)
	require.NoError(t, err)
	return c
}

func TestChatText(t *testing.T) {
	var sent map[string]any
	c := newTestClient(t, `{"model":"llama3.2","created_at":"2026-01-01T00:00:00Z",`+
		`"message":{"role":"assistant","content":"{\"is_acceptable\":true,\"feedback\":\"fine\"}"},`+
		`"done":true,"done_reason":"stop","prompt_eval_count":7,"eval_count":3}`, &sent)

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: "evaluate"}},
		ResponseFormat: &llm.ResponseFormat{Type: llm.FormatJSONObject},
	})
	require.NoError(t, err)
	assert.Equal(t, llm.FinishReasonStop, resp.FinishReason)
	assert.JSONEq(t, `{"is_acceptable":true,"feedback":"fine"}`, resp.Message.Content)
	assert.Equal(t, 10, resp.Usage.TotalTokens)

	assert.Equal(t, "json", sent["format"])
	assert.Equal(t, false, sent["stream"])
}

func TestChatToolCalls(t *testing.T) {
	var sent map[string]any
	c := newTestClient(t, `{"model":"llama3.2","created_at":"2026-01-01T00:00:00Z",`+
		`"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"record_unknown_question","arguments":{"question":"q"}}}]},`+
		`"done":true,"done_reason":"stop"}`, &sent)

	resp, err := c.Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "q"}},
		Tools: []llm.ToolDeclaration{{
			Name:        "record_unknown_question",
			Description: "record",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"question": map[string]any{"type": "string"}},
				"required":   []string{"question"},
			},
		}},
	})
	require.NoError(t, err)
	assert.True(t, resp.NeedsToolExecution())
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.NotEmpty(t, resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"question":"q"}`, resp.Message.ToolCalls[0].Arguments)

	tools, ok := sent["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "record_unknown_question", fn["name"])
}

func TestConvertMessagesToolResult(t *testing.T) {
	call := llm.ToolCall{ID: "call_1", Name: "record_unknown_question", Arguments: `{"question":"q"}`}
	msgs := convertMessages([]llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
		llm.NewToolResultMessage(call, `{"recorded":"ok"}`),
	})

	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, "record_unknown_question", msgs[0].ToolCalls[0].Function.Name)
	assert.Equal(t, "tool", msgs[1].Role)
	assert.Equal(t, "record_unknown_question", msgs[1].ToolName)
	assert.Equal(t, "call_1", msgs[1].ToolCallID)
}

func TestIsTransientError(t *testing.T) {
	c := &OllamaClient{}
	assert.False(t, c.IsTransientError(nil))
	assert.False(t, c.IsTransientError(assert.AnError))
	assert.True(t, c.IsTransientError(errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")))
}
