package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/persona"
)

// turnState is a step of a turn: generating -> evaluating -> accepted | regenerating -> done.
type turnState int

const (
	turnGenerating turnState = iota
	turnEvaluating
	turnAccepted
	turnRegenerating
	turnDone
)

func (s turnState) String() string {
	switch s {
	case turnGenerating:
		return "generating"
	case turnEvaluating:
		return "evaluating"
	case turnAccepted:
		return "accepted"
	case turnRegenerating:
		return "regenerating"
	case turnDone:
		return "done"
	default:
		return "unknown"
	}
}

// Generator produces a reply for a conversation. Engine implements it.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []llm.Message, message string) (string, error)
}

// Judge evaluates a candidate reply. Evaluator implements it.
type Judge interface {
	Evaluate(ctx context.Context, reply, message string, history []llm.Message) (Evaluation, error)
}

// TurnController drives one user message through generation, evaluation and
// at most one regeneration.
type TurnController struct {
	persona   *persona.GroundingContext
	generator Generator
	judge     Judge
	metrics   *Metrics
}

// NewTurnController creates a controller. A nil judge accepts every reply unevaluated.
func NewTurnController(gc *persona.GroundingContext, generator Generator, judge Judge, metrics *Metrics) *TurnController {
	return &TurnController{
		persona:   gc,
		generator: generator,
		judge:     judge,
		metrics:   metrics,
	}
}

// Respond returns the final reply to message. A regenerated reply is returned
// without a second evaluation. Failures carry the failing stage as *TurnError.
func (t *TurnController) Respond(ctx context.Context, message string, history []llm.Turn) (string, error) {
	start := time.Now()
	msgs := llm.NormalizeHistory(history)
	systemPrompt := t.persona.SystemPrompt()

	var (
		reply      string
		evaluation Evaluation
		outcome    = OutcomeAccepted
		err        error
	)

	fail := func(stage Stage, err error) (string, error) {
		t.metrics.recordTurn(OutcomeFailed, time.Since(start))
		slog.ErrorContext(ctx, "Turn failed", "stage", stage, "error", err)
		return "", &TurnError{Stage: stage, Err: err}
	}

	state := turnGenerating
	for state != turnDone {
		slog.DebugContext(ctx, "Turn state", "state", state)

		switch state {
		case turnGenerating:
			reply, err = t.generator.Generate(ctx, systemPrompt, msgs, message)
			if err != nil {
				return fail(StageGenerate, err)
			}
			state = turnEvaluating
			if t.judge == nil {
				state = turnAccepted
			}

		case turnEvaluating:
			evaluation, err = t.judge.Evaluate(ctx, reply, message, msgs)
			if err != nil {
				return fail(StageEvaluate, err)
			}
			if evaluation.IsAcceptable {
				state = turnAccepted
			} else {
				slog.InfoContext(ctx, "Reply rejected, regenerating", "feedback", evaluation.Feedback)
				state = turnRegenerating
			}

		case turnAccepted:
			state = turnDone

		case turnRegenerating:
			prompt := t.persona.RegenerationPrompt(reply, evaluation.Feedback)
			reply, err = t.generator.Generate(ctx, prompt, msgs, message)
			if err != nil {
				return fail(StageRegenerate, err)
			}
			outcome = OutcomeRegenerated
			state = turnDone
		}
	}

	t.metrics.recordTurn(outcome, time.Since(start))
	slog.InfoContext(ctx, "Turn completed", "outcome", outcome, "duration", time.Since(start))
	return reply, nil
}
