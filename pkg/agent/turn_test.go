package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/persona"
)

func newController(t *testing.T, gen, eval *fakeClient, strict bool) (*TurnController, *memoryAudit, *Metrics) {
	t.Helper()
	reg, _, rec := newRegistry(t, strict)
	m := NewMetrics(prometheus.NewRegistry())
	engine := NewEngine(gen, reg, EngineOptions{Metrics: m})

	var judge Judge
	if eval != nil {
		ev, err := NewEvaluator(testPersona(), nil, eval, rec, m)
		require.NoError(t, err)
		judge = ev
	}
	return NewTurnController(testPersona(), engine, judge, m), rec, m
}

func TestRespondAccepted(t *testing.T) {
	gen := newFakeClient("openai", answer("I work at Acme as a data scientist."))
	eval := newFakeClient("openai", answer(`{"is_acceptable": true, "feedback": "Good."}`))
	tc, rec, m := newController(t, gen, eval, false)

	reply, err := tc.Respond(context.Background(), "Where do you work?", nil)
	require.NoError(t, err)
	assert.Equal(t, "I work at Acme as a data scientist.", reply)
	assert.Equal(t, 1, gen.calls())
	assert.Equal(t, 1, eval.calls())
	assert.Len(t, rec.evaluations, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeAccepted)))
}

func TestRespondRegeneratesOnceAndReturnsUnconditionally(t *testing.T) {
	gen := newFakeClient("openai", answer("I dunno."), answer("I'm a data scientist at Acme in Boston."))
	eval := newFakeClient("openai",
		answer(`{"is_acceptable": false, "feedback": "Not professional."}`),
		answer(`{"is_acceptable": false, "feedback": "Still bad."}`))
	tc, _, m := newController(t, gen, eval, false)

	reply, err := tc.Respond(context.Background(), "What do you do?", nil)
	require.NoError(t, err)
	assert.Equal(t, "I'm a data scientist at Acme in Boston.", reply)
	assert.Equal(t, 2, gen.calls())
	assert.Equal(t, 1, eval.calls())

	regenSystem := gen.request(1).Messages[0].Content
	assert.True(t, strings.HasPrefix(regenSystem, testPersona().SystemPrompt()))
	assert.Contains(t, regenSystem, persona.RejectionMarker)
	assert.Contains(t, regenSystem, "I dunno.")
	assert.Contains(t, regenSystem, "Not professional.")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeRegenerated)))
}

func TestRespondPromptPurity(t *testing.T) {
	gen := newFakeClient("openai", answer("Hello!"))
	tc, _, _ := newController(t, gen, nil, false)

	history := []llm.Turn{
		{Role: "", Content: "hi"},
		{Role: "assistant", Content: "Hi there."},
	}
	_, err := tc.Respond(context.Background(), "Tell me about yourself", history)
	require.NoError(t, err)

	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: testPersona().SystemPrompt()},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "Hi there."},
		{Role: llm.RoleUser, Content: "Tell me about yourself"},
	}, gen.request(0).Messages)
}

func TestRespondFavoriteColorScenario(t *testing.T) {
	call := llm.ToolCall{ID: "call_color", Name: "record_unknown_question", Arguments: `{"question":"What is your favorite color?"}`}
	gen := newFakeClient("openai", callTools(call), answer("I'm not sure, but I've noted your question."))
	eval := newFakeClient("openai", answer(`{"is_acceptable": true, "feedback": "Honest."}`))

	n := &recordingNotifier{}
	rec := &memoryAudit{}
	reg, err := newScenarioRegistry(n, rec)
	require.NoError(t, err)
	ev, err := NewEvaluator(testPersona(), nil, eval, rec, nil)
	require.NoError(t, err)
	tc := NewTurnController(testPersona(), NewEngine(gen, reg, EngineOptions{}), ev, nil)

	reply, err := tc.Respond(context.Background(), "What's your favorite color?", nil)
	require.NoError(t, err)
	assert.Equal(t, "I'm not sure, but I've noted your question.", reply)
	assert.Equal(t, []string{"Recording What is your favorite color?"}, n.texts)
	require.Len(t, rec.questions, 1)
	require.Len(t, rec.evaluations, 1)
	assert.Equal(t, reply, rec.evaluations[0].Reply)
}

func TestRespondStageErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("generate", func(t *testing.T) {
		tc, _, m := newController(t, newFakeClient("openai", failWith(boom)), nil, false)
		_, err := tc.Respond(context.Background(), "hi", nil)

		var turnErr *TurnError
		require.ErrorAs(t, err, &turnErr)
		assert.Equal(t, StageGenerate, turnErr.Stage)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues(OutcomeFailed)))
	})

	t.Run("evaluate", func(t *testing.T) {
		gen := newFakeClient("openai", answer("reply"))
		tc, _, _ := newController(t, gen, newFakeClient("openai", answer("not json")), false)
		_, err := tc.Respond(context.Background(), "hi", nil)

		var turnErr *TurnError
		require.ErrorAs(t, err, &turnErr)
		assert.Equal(t, StageEvaluate, turnErr.Stage)
		assert.ErrorIs(t, err, ErrEvaluationFailed)
	})

	t.Run("regenerate", func(t *testing.T) {
		gen := newFakeClient("openai", answer("bad"), failWith(boom))
		eval := newFakeClient("openai", answer(`{"is_acceptable": false, "feedback": "no"}`))
		tc, _, _ := newController(t, gen, eval, false)
		_, err := tc.Respond(context.Background(), "hi", nil)

		var turnErr *TurnError
		require.ErrorAs(t, err, &turnErr)
		assert.Equal(t, StageRegenerate, turnErr.Stage)
	})

	t.Run("strict unknown tool", func(t *testing.T) {
		gen := newFakeClient("openai", callTools(llm.ToolCall{ID: "1", Name: "rm_rf", Arguments: `{}`}))
		tc, _, _ := newController(t, gen, nil, true)
		_, err := tc.Respond(context.Background(), "hi", nil)

		var turnErr *TurnError
		require.ErrorAs(t, err, &turnErr)
		assert.Equal(t, StageGenerate, turnErr.Stage)
	})
}
