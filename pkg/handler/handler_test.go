package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovanni-lunetta/giovanni-site/pkg/agent"
	"github.com/giovanni-lunetta/giovanni-site/pkg/api"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

type scriptedResponder struct {
	mu        sync.Mutex
	reply     string
	err       error
	histories [][]llm.Turn
	wait      bool
}

func (r *scriptedResponder) Respond(ctx context.Context, message string, history []llm.Turn) (string, error) {
	r.mu.Lock()
	r.histories = append(r.histories, history)
	r.mu.Unlock()
	if r.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

type recordingResponder struct {
	mu      sync.Mutex
	replies []string
	errors  []string
	signals []string
}

func (r *recordingResponder) SendReply(_ api.SessionContext, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, content)
	return nil
}

func (r *recordingResponder) SendError(_ api.SessionContext, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, content)
	return nil
}

func (r *recordingResponder) SendSignal(_ api.SessionContext, signal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
	return nil
}

var session = api.SessionContext{ChannelID: "web", ChatID: "abc", Username: "visitor"}

func newHandler(resp api.Responder, timeout time.Duration) (*ChatHandler, *recordingResponder, *llm.SessionManager) {
	sessions := llm.NewSessionManager("")
	h := NewChatHandler(resp, sessions, timeout)
	out := &recordingResponder{}
	h.SetResponder(out)
	return h, out, sessions
}

func TestOnMessageAppendsExchangeOnSuccess(t *testing.T) {
	resp := &scriptedResponder{reply: "Hello there"}
	h, out, sessions := newHandler(resp, 0)

	h.OnMessage(context.Background(), &api.UnifiedMessage{Session: session, Content: "hi"})
	h.OnMessage(context.Background(), &api.UnifiedMessage{Session: session, Content: "again"})

	assert.Equal(t, []string{"Hello there", "Hello there"}, out.replies)
	assert.Equal(t, []string{api.SignalThinking, api.SignalThinking}, out.signals)
	assert.Empty(t, out.errors)

	require.Len(t, resp.histories, 2)
	assert.Empty(t, resp.histories[0])
	assert.Equal(t, []llm.Turn{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "Hello there"},
	}, resp.histories[1])

	h2, err := sessions.GetHistory(session.Key())
	require.NoError(t, err)
	assert.Equal(t, 4, h2.Len())
}

func TestOnMessageFailureLeavesHistoryUntouched(t *testing.T) {
	resp := &scriptedResponder{err: &agent.TurnError{Stage: agent.StageEvaluate, Err: agent.ErrEvaluationFailed}}
	h, out, sessions := newHandler(resp, 0)

	h.OnMessage(context.Background(), &api.UnifiedMessage{Session: session, Content: "hi"})

	assert.Empty(t, out.replies)
	assert.Equal(t, []string{GenericErrorMessage}, out.errors)

	hist, err := sessions.GetHistory(session.Key())
	require.NoError(t, err)
	assert.Equal(t, 0, hist.Len())
}

func TestOnMessageTimeout(t *testing.T) {
	resp := &scriptedResponder{wait: true}
	h, out, _ := newHandler(resp, 20*time.Millisecond)

	h.OnMessage(context.Background(), &api.UnifiedMessage{Session: session, Content: "hi"})

	assert.Equal(t, []string{TimeoutMessage}, out.errors)
}

func TestOnMessageIgnoresBlankInput(t *testing.T) {
	resp := &scriptedResponder{reply: "x"}
	h, out, _ := newHandler(resp, 0)

	h.OnMessage(context.Background(), &api.UnifiedMessage{Session: session, Content: "   "})

	assert.Empty(t, resp.histories)
	assert.Empty(t, out.signals)
}

func TestOnMessageSessionsAreIsolated(t *testing.T) {
	resp := &scriptedResponder{reply: "ok"}
	h, _, _ := newHandler(resp, 0)
	other := api.SessionContext{ChannelID: "telegram", ChatID: "42"}

	var wg sync.WaitGroup
	for _, s := range []api.SessionContext{session, other} {
		wg.Add(1)
		go func(s api.SessionContext) {
			defer wg.Done()
			h.OnMessage(context.Background(), &api.UnifiedMessage{Session: s, Content: "hi"})
		}(s)
	}
	wg.Wait()

	for _, hist := range resp.histories {
		assert.Empty(t, hist)
	}
}

func TestOnMessageReleasesIdleSessionLocks(t *testing.T) {
	resp := &scriptedResponder{reply: "ok"}
	h, out, _ := newHandler(resp, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := api.SessionContext{ChannelID: "web", ChatID: string(rune('a' + i%3))}
			h.OnMessage(context.Background(), &api.UnifiedMessage{Session: s, Content: "hi"})
		}(i)
	}
	wg.Wait()

	assert.Len(t, out.replies, 8)
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	assert.Empty(t, h.locks)
}
