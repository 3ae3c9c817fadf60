// Package toolkit implements the Tool Registry & Skill Firewall (§4.5): a
// static registry of tool definitions and bindings, skills grouping tool
// names, and a node→skill policy whose firewall materializes the toolset a
// node may see. Grounded on the registry/policy split of a tool registry
// keyed by name plus a resolver consulting an allow/deny policy.
package toolkit

import (
	"context"
	"encoding/json"
)

// Binding is a pure function over JSON arguments closing over resources,
// returning a JSON result string (§3 "Tool binding").
type Binding func(ctx context.Context, args json.RawMessage) (string, error)

// Def is a tool definition exposed to the LLM provider (§3 "Tool definition").
type Def struct {
	Name             string
	Description      string
	ParametersSchema json.RawMessage
}

// entry pairs a Def with its Binding.
type entry struct {
	def     Def
	binding Binding
}

// Registry is the static, flat map from tool name to binding (§9 "Tool
// binding as pure functions" — avoid dynamic dispatch).
type Registry struct {
	entries   map[string]entry
	validator *schemaValidator
}

// NewRegistry creates an empty registry. Call arguments are validated
// against each tool's ParametersSchema before its binding runs (§4.18).
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry), validator: newSchemaValidator()}
}

// Register adds a tool definition and its binding.
func (r *Registry) Register(def Def, binding Binding) {
	r.entries[def.Name] = entry{def: def, binding: binding}
}

// Def returns the definition for name, if registered.
func (r *Registry) Def(name string) (Def, bool) {
	e, ok := r.entries[name]
	return e.def, ok
}

// Invoke resolves name, validates args against the tool's ParametersSchema
// (if any), and calls its binding. A schema failure is surfaced as an error
// exactly like any other non-fatal tool failure (§4.18, §7) — the caller
// (the Tool Loop, §4.10) turns it into a TOOL_ERROR result payload, never a
// panic. Tool results returned to the LLM are always JSON strings (§4.5).
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	e, ok := r.entries[name]
	if !ok {
		return "", ErrUnknownTool(name)
	}
	if err := r.validator.validateArgs(name, e.def.ParametersSchema, args); err != nil {
		return "", err
	}
	return e.binding(ctx, args)
}

// ErrUnknownTool reports that name is not registered.
type ErrUnknownTool string

func (e ErrUnknownTool) Error() string {
	return "unknown tool: " + string(e)
}
