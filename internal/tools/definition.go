// Package tools holds the tool catalogue offered to the model, the input
// contract validator and the dispatcher that resolves tool calls.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Executor runs a tool on the server. Input has already passed validation.
type Executor func(ctx context.Context, input map[string]any) (any, error)

// Definition couples a tool schema with its cross-field rules and an
// optional executor. Tools without an executor are client directives: the
// desktop carries them out when it sees the validated invocation.
type Definition struct {
	Tool     mcp.Tool
	Rules    []Rule
	Executor Executor

	schema *jsonschema.Schema
}

func (d *Definition) Name() string { return d.Tool.Name }

// Registry is the immutable set of tools for the process.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for i := range defs {
		d := defs[i]
		if d.Tool.Name == "" {
			return nil, fmt.Errorf("tool %d has no name", i)
		}
		if _, dup := r.defs[d.Tool.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", d.Tool.Name)
		}
		schema, err := compileSchema(d.Tool)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", d.Tool.Name, err)
		}
		d.schema = schema
		r.defs[d.Tool.Name] = &d
		r.order = append(r.order, d.Tool.Name)
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Tools returns the schemas in registration order.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name].Tool)
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
