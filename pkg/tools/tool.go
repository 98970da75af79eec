package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	jsoniter "github.com/json-iterator/go"
	"github.com/xeipuuv/gojsonschema"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidArguments is returned when call arguments do not match the tool schema.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ID identifies a tool. Only the identifiers declared below can be registered.
type ID string

const (
	RecordUserDetails     ID = "record_user_details"
	RecordUnknownQuestion ID = "record_unknown_question"
)

// knownIDs is the closed set of tool identifiers.
var knownIDs = map[ID]struct{}{
	RecordUserDetails:     {},
	RecordUnknownQuestion: {},
}

// ParseID maps a tool name to its identifier.
func ParseID(name string) (ID, bool) {
	id := ID(name)
	_, ok := knownIDs[id]
	return id, ok
}

// Tool is a typed, schema-validated action the model can request.
type Tool interface {
	ID() ID
	Declaration() llm.ToolDeclaration
	// Invoke validates the JSON arguments and runs the handler. The result is a JSON object.
	Invoke(ctx context.Context, arguments string) (string, error)
}

// Handler is a typed tool handler.
type Handler[TArgs, TResult any] func(ctx context.Context, args TArgs) (TResult, error)

type functionTool[TArgs, TResult any] struct {
	id          ID
	description string
	parameters  map[string]any
	validator   *gojsonschema.Schema
	handler     Handler[TArgs, TResult]
}

// NewFunction builds a tool whose argument schema is reflected from TArgs.
// Fields without omitempty are required; unknown fields are rejected.
func NewFunction[TArgs, TResult any](id ID, description string, handler func(ctx context.Context, args TArgs) (TResult, error)) (Tool, error) {
	if _, ok := knownIDs[id]; !ok {
		return nil, fmt.Errorf("tool: unknown identifier %q", id)
	}
	if handler == nil {
		return nil, fmt.Errorf("tool %s: handler is nil", id)
	}

	params, err := SchemaFor[TArgs]()
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", id, err)
	}
	validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile schema: %w", id, err)
	}

	return &functionTool[TArgs, TResult]{
		id:          id,
		description: description,
		parameters:  params,
		validator:   validator,
		handler:     handler,
	}, nil
}

func (t *functionTool[TArgs, TResult]) ID() ID {
	return t.id
}

func (t *functionTool[TArgs, TResult]) Declaration() llm.ToolDeclaration {
	return llm.ToolDeclaration{
		Name:        string(t.id),
		Description: t.description,
		Parameters:  t.parameters,
	}
}

func (t *functionTool[TArgs, TResult]) Invoke(ctx context.Context, arguments string) (string, error) {
	if arguments == "" {
		arguments = "{}"
	}

	res, err := t.validator.Validate(gojsonschema.NewStringLoader(arguments))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !res.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidArguments, describeErrors(res.Errors()))
	}

	var args TArgs
	if err := json.UnmarshalFromString(arguments, &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	out, err := t.handler(ctx, args)
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("tool %s: marshal result: %w", t.id, err)
	}
	return string(b), nil
}

// SchemaFor reflects the JSON schema of T as a plain map, inlined and without
// meta keys, ready to be sent to providers.
func SchemaFor[T any]() (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	s := r.Reflect(&zero)

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

func describeErrors(errs []gojsonschema.ResultError) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.String()
	}
	return msg
}
