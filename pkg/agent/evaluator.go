package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/giovanni-lunetta/giovanni-site/pkg/audit"
	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
	"github.com/giovanni-lunetta/giovanni-site/pkg/persona"
	"github.com/giovanni-lunetta/giovanni-site/pkg/tools"
)

// Evaluation is the evaluator's verdict on a candidate reply.
type Evaluation struct {
	IsAcceptable bool   `json:"is_acceptable" jsonschema_description:"Whether the reply is acceptable"`
	Feedback     string `json:"feedback" jsonschema_description:"Why the reply was accepted or rejected"`
}

// evalState is a step of the evaluator state machine:
// tryPrimary -> done | trySecondary -> done | failed.
type evalState int

const (
	stateTryPrimary evalState = iota
	stateTrySecondary
	stateDone
	stateFailed
)

func (s evalState) String() string {
	switch s {
	case stateTryPrimary:
		return "try_primary"
	case stateTrySecondary:
		return "try_secondary"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("eval_state(%d)", int(s))
	}
}

// Evaluator judges candidate replies. The primary path asks a structured-output
// capable model for a schema-constrained verdict; the secondary path asks a
// JSON-mode model and parses its text.
type Evaluator struct {
	persona   *persona.GroundingContext
	primary   llm.ChatClient
	secondary llm.ChatClient
	audit     audit.Recorder
	metrics   *Metrics

	schema    map[string]any
	validator *gojsonschema.Schema
}

// NewEvaluator creates an evaluator. primary may be nil, in which case only the
// secondary path runs. secondary is required.
func NewEvaluator(gc *persona.GroundingContext, primary, secondary llm.ChatClient, rec audit.Recorder, metrics *Metrics) (*Evaluator, error) {
	if secondary == nil {
		return nil, errors.New("evaluator: secondary client is required")
	}
	if rec == nil {
		rec = audit.Nop{}
	}

	schema, err := tools.SchemaFor[Evaluation]()
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}
	// JSON-mode replies are only required to carry both fields.
	loose := maps.Clone(schema)
	delete(loose, "additionalProperties")
	validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(loose))
	if err != nil {
		return nil, fmt.Errorf("evaluator: compile schema: %w", err)
	}

	return &Evaluator{
		persona:   gc,
		primary:   primary,
		secondary: secondary,
		audit:     rec,
		metrics:   metrics,
		schema:    schema,
		validator: validator,
	}, nil
}

// Evaluate judges reply as an answer to message given the prior history.
// Every successful verdict is appended to the audit log.
func (ev *Evaluator) Evaluate(ctx context.Context, reply, message string, history []llm.Message) (Evaluation, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: ev.persona.EvaluatorSystemPrompt()},
		{Role: llm.RoleUser, Content: persona.EvaluatorUserPrompt(reply, message, history)},
	}

	state := stateTryPrimary
	if ev.primary == nil {
		state = stateTrySecondary
	}

	var (
		result  Evaluation
		resp    *llm.ChatResponse
		client  llm.ChatClient
		lastErr error
	)

	for {
		slog.DebugContext(ctx, "Evaluator state", "state", state)

		switch state {
		case stateTryPrimary:
			client = ev.primary
			result, resp, lastErr = ev.tryStructured(ctx, msgs)
			if lastErr == nil {
				state = stateDone
				continue
			}
			slog.WarnContext(ctx, "Structured evaluation failed, falling back to JSON mode",
				"provider", ev.primary.Provider(), "error", lastErr)
			ev.metrics.recordFallback()
			state = stateTrySecondary

		case stateTrySecondary:
			client = ev.secondary
			result, resp, lastErr = ev.tryJSONMode(ctx, msgs)
			if lastErr == nil {
				state = stateDone
			} else {
				state = stateFailed
			}

		case stateDone:
			model := resp.Model
			if model == "" {
				model = client.Model()
			}
			if err := ev.audit.RecordEvaluation(audit.EvaluationRecord{
				Provider:     client.Provider(),
				Model:        model,
				Message:      message,
				Reply:        reply,
				History:      llm.ToTurns(history),
				IsAcceptable: result.IsAcceptable,
				Feedback:     result.Feedback,
			}); err != nil {
				slog.WarnContext(ctx, "Failed to log evaluation", "provider", client.Provider(), "error", err)
			}
			ev.metrics.recordEvaluation(client.Provider(), result.IsAcceptable)
			slog.InfoContext(ctx, "Reply evaluated", "provider", client.Provider(), "model", model, "acceptable", result.IsAcceptable)
			return result, nil

		case stateFailed:
			slog.ErrorContext(ctx, "Evaluation failed", "provider", ev.secondary.Provider(), "error", lastErr)
			return Evaluation{}, fmt.Errorf("%w: %v", ErrEvaluationFailed, lastErr)
		}
	}
}

func (ev *Evaluator) tryStructured(ctx context.Context, msgs []llm.Message) (Evaluation, *llm.ChatResponse, error) {
	resp, err := ev.primary.Chat(ctx, &llm.ChatRequest{
		Messages: msgs,
		ResponseFormat: &llm.ResponseFormat{
			Type:   llm.FormatJSONSchema,
			Name:   "evaluation",
			Schema: ev.schema,
			Strict: true,
		},
	})
	if err != nil {
		return Evaluation{}, nil, err
	}
	result, err := ev.parse(resp.Message.Content)
	return result, resp, err
}

func (ev *Evaluator) tryJSONMode(ctx context.Context, msgs []llm.Message) (Evaluation, *llm.ChatResponse, error) {
	resp, err := ev.secondary.Chat(ctx, &llm.ChatRequest{
		Messages:       msgs,
		ResponseFormat: &llm.ResponseFormat{Type: llm.FormatJSONObject},
	})
	if err != nil {
		return Evaluation{}, nil, err
	}
	result, err := ev.parse(resp.Message.Content)
	return result, resp, err
}

// parse validates the verdict text against the evaluation schema and decodes it.
func (ev *Evaluator) parse(text string) (Evaluation, error) {
	text = stripCodeFence(text)

	res, err := ev.validator.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return Evaluation{}, fmt.Errorf("malformed verdict: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Evaluation{}, fmt.Errorf("invalid verdict: %s", strings.Join(msgs, "; "))
	}

	var out Evaluation
	if err := json.UnmarshalFromString(text, &out); err != nil {
		return Evaluation{}, fmt.Errorf("decode verdict: %w", err)
	}
	return out, nil
}

// stripCodeFence removes a surrounding ```json fence some models add in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
