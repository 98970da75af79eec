package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/giovanni-lunetta/giovanni-site/pkg/audit"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/persona"
	"github.com/giovanni-lunetta/giovanni-site/pkg/tools"
)

// fakeClient answers each Chat call with the next scripted step.
type fakeClient struct {
	mu       sync.Mutex
	provider string
	model    string
	steps    []func(req *llm.ChatRequest) (*llm.ChatResponse, error)
	requests []*llm.ChatRequest
}

func newFakeClient(provider string, steps ...func(req *llm.ChatRequest) (*llm.ChatResponse, error)) *fakeClient {
	return &fakeClient{provider: provider, model: provider + "-model", steps: steps}
}

func (f *fakeClient) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.steps) == 0 {
		return textReply("unexpected call"), nil
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	return step(req)
}

func (f *fakeClient) Provider() string            { return f.provider }
func (f *fakeClient) Model() string               { return f.model }
func (f *fakeClient) IsTransientError(error) bool { return false }

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) request(i int) *llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func textReply(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
		FinishReason: llm.FinishReasonStop,
	}
}

func toolReply(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, ToolCalls: calls},
		FinishReason: llm.FinishReasonToolCalls,
	}
}

func answer(text string) func(*llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(*llm.ChatRequest) (*llm.ChatResponse, error) { return textReply(text), nil }
}

func callTools(calls ...llm.ToolCall) func(*llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(*llm.ChatRequest) (*llm.ChatResponse, error) { return toolReply(calls...), nil }
}

func failWith(err error) func(*llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(*llm.ChatRequest) (*llm.ChatResponse, error) { return nil, err }
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

type memoryAudit struct {
	audit.Nop
	mu          sync.Mutex
	evaluations []audit.EvaluationRecord
	questions   []audit.UnknownQuestionRecord
}

func (m *memoryAudit) RecordEvaluation(rec audit.EvaluationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations = append(m.evaluations, rec)
	return nil
}

func (m *memoryAudit) RecordUnknownQuestion(rec audit.UnknownQuestionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions = append(m.questions, rec)
	return nil
}

// failingAudit rejects every evaluation write.
type failingAudit struct {
	audit.Nop
	attempts int
}

func (f *failingAudit) RecordEvaluation(audit.EvaluationRecord) error {
	f.attempts++
	return errors.New("disk full")
}

func testPersona() *persona.GroundingContext {
	return persona.New("Jane Doe", "Jane is a data scientist in Boston.", "", "Jane Doe - Data Scientist at Acme")
}

func newScenarioRegistry(n *recordingNotifier, rec *memoryAudit) (*tools.Registry, error) {
	return tools.NewDefaultRegistry(&tools.Recorders{Notifier: n, Audit: rec}, false)
}
