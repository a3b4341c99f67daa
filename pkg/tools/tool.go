// Package tools implements the tool registry: a name -> Tool map populated
// once at agent construction and read thereafter, plus the two built-in
// tools (vector_upsert, vector_search).
package tools

import (
	"context"

	"github.com/satibot/satibot/pkg/config"
)

// EmbedFunc computes one vector per input text. The agent wires this to
// either the local embedder or a remote one depending on
// config.Agents.Defaults.EmbeddingModel.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float64, error)

// SubagentFunc spawns a labeled sub-task and returns its summary text. The
// tool context carries this hook for extension tools; no built-in tool
// calls it.
type SubagentFunc func(ctx context.Context, task, label string) (string, error)

// ToolContext is threaded into every tool's Execute call. It carries the
// read-only config snapshot plus the two injected hooks, GetEmbeddings and
// SpawnSubagent.
type ToolContext struct {
	Config        config.Config
	GetEmbeddings EmbedFunc
	SpawnSubagent SubagentFunc
}

// Tool is the contract every registry entry implements: a name, a one-line
// description, a JSON-schema parameter spec, and an executor that takes the
// raw JSON arguments string the model produced and returns human-readable
// result text (or an error, which the agent turns into a tool-result
// message itself — see pkg/agent).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, tc *ToolContext, argsJSON string) (string, error)
}

// Registry is the immutable-after-construction name -> Tool map. Names are
// unique within a registry.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry, keyed by t.Name(). Registering a second
// tool under the same name replaces the first — callers are expected to
// register each name exactly once at construction time.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Definitions returns every registered tool's {name, description, parameters}
// in registration order, the shape the agent hands to a provider adapter.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Definition is a registry entry's {name, description, parameters},
// independent of any one provider's wire format.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}
