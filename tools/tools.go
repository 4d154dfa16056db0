package tools

import (
	"context"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/dialagent/errors"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	// InputSchema is a JSON Schema object describing the arguments.
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Spec is the declaration of a tool as advertised to the model.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SpecOf captures the declaration of t.
func SpecOf(t Tool) Spec {
	params := t.InputSchema()
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return Spec{Name: t.Name(), Description: t.Description(), Parameters: params}
}

// Registry holds the available tools in registration order. It is built once
// at startup and only read afterwards, so it may be shared between turns.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register stores t by name. A duplicate name replaces the earlier tool but
// keeps the position of the first registration.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns every tool declaration in registration order.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, SpecOf(r.tools[name]))
	}
	return specs
}

func (r *Registry) Names() []string { return slices.Clone(r.order) }

func (r *Registry) Len() int { return len(r.order) }

// Select returns a registry restricted to the tools whose names match any of
// the glob patterns, keeping registration order. Every pattern must match at
// least one tool.
func (r *Registry) Select(patterns []string) (*Registry, error) {
	matched := make(map[string]bool)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.New("invalid tool pattern '%s'", pattern)
		}
		hit := false
		for _, name := range r.order {
			if ok, _ := doublestar.Match(pattern, name); ok {
				matched[name] = true
				hit = true
			}
		}
		if !hit {
			return nil, errors.New("tool pattern '%s' matches no registered tool", pattern)
		}
	}

	out := NewRegistry()
	for _, name := range r.order {
		if matched[name] {
			out.Register(r.tools[name])
		}
	}
	return out, nil
}
