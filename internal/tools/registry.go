// Package tools defines the tools available to the tutoring agent and
// the registry that validates and executes them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sahayak/tutor-agent/internal/llm"
)

// Outcome is what one tool execution produces. Feedback always goes
// back to the model as the tool result; Visible, when non-empty, is a
// rendered block appended directly to the user-facing response.
type Outcome struct {
	Feedback string
	Visible  string
}

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, learnerID int64, args map[string]any) (Outcome, error)

	schema *jsonschema.Schema
}

// Registry holds available tools.
type Registry struct {
	tools []*Tool
	index map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]*Tool)}
}

// Register adds a tool to the registry, compiling its parameter schema
// so arguments can be validated before the handler runs.
func (r *Registry) Register(t *Tool) error {
	if t.Parameters != nil {
		schemaJSON, err := json.Marshal(t.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s: marshal schema: %w", t.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(t.Name+".json", bytes.NewReader(schemaJSON)); err != nil {
			return fmt.Errorf("tool %s: add schema: %w", t.Name, err)
		}
		schema, err := compiler.Compile(t.Name + ".json")
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
		}
		t.schema = schema
	}

	if _, exists := r.index[t.Name]; !exists {
		r.tools = append(r.tools, t)
	}
	r.index[t.Name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.index[name]
}

// Manifest returns the tool specifications in registration order, for
// passing to a model backend.
func (r *Registry) Manifest() []llm.Tool {
	result := make([]llm.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return result
}

// Execute runs a tool by name with the given arguments, validating
// them against the tool's schema first.
func (r *Registry) Execute(ctx context.Context, learnerID int64, name string, args map[string]any) (Outcome, error) {
	tool := r.index[name]
	if tool == nil {
		return Outcome{}, &ErrToolUnavailable{ToolName: name}
	}

	if args == nil {
		args = map[string]any{}
	}
	if tool.schema != nil {
		if err := tool.schema.Validate(normalizeArgs(args)); err != nil {
			return Outcome{}, fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}

	out, err := tool.Handler(ctx, learnerID, args)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// normalizeArgs round-trips arguments through JSON so the validator
// sees the exact types it expects (e.g. json.Number-free float64 maps
// regardless of how the arguments were constructed).
func normalizeArgs(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}
