package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/giovanni-lunetta/giovanni-site/pkg/llm"
)

// ErrUnknownTool is returned by a strict registry when a call names an unregistered tool.
var ErrUnknownTool = errors.New("unknown tool")

// EmptyResult answers calls to unknown tools under the lenient policy.
const EmptyResult = "{}"

// Registry maps tool identifiers to registered tools.
// Registration happens at startup; lookups are safe for concurrent turns.
type Registry struct {
	mu     sync.RWMutex
	tools  map[ID]Tool
	order  []ID
	strict bool
}

// NewRegistry creates an empty registry. When strict is true, calls to unknown
// tools fail with ErrUnknownTool instead of resolving to EmptyResult.
func NewRegistry(strict bool) *Registry {
	return &Registry{
		tools:  make(map[ID]Tool),
		strict: strict,
	}
}

// Register adds tools in declaration order. Unknown identifiers and duplicates are rejected.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		if t == nil {
			return fmt.Errorf("register: nil tool")
		}
		id := t.ID()
		if _, ok := knownIDs[id]; !ok {
			return fmt.Errorf("register: unknown tool identifier %q", id)
		}
		if _, dup := r.tools[id]; dup {
			return fmt.Errorf("register: tool %q already registered", id)
		}
		r.tools[id] = t
		r.order = append(r.order, id)
	}
	return nil
}

// Strict reports the unknown-tool policy.
func (r *Registry) Strict() bool {
	return r.strict
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	id, ok := ParseID(name)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// Schemas returns the declarations of all registered tools in registration order.
func (r *Registry) Schemas() []llm.ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]llm.ToolDeclaration, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id].Declaration())
	}
	return out
}

// Invoke runs a single tool call with exactly the arguments the model supplied.
func (r *Registry) Invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	t, ok := r.Resolve(call.Name)
	if !ok {
		if r.strict {
			return "", fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
		}
		slog.WarnContext(ctx, "Model called unknown tool, answering with empty result", "tool", call.Name, "call_id", call.ID)
		return EmptyResult, nil
	}

	slog.InfoContext(ctx, "Tool called", "tool", call.Name, "call_id", call.ID)
	return t.Invoke(ctx, call.Arguments)
}
