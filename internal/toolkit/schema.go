package toolkit

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validate "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema reflects a Go argument struct into a JSON Schema document,
// grounded on the teacher's own config.JSONSchema() reflector call. Used at
// registry-construction time so a built-in tool's schema and its Go-typed
// binding can never drift apart (§4.18).
func GenerateSchema(v any) json.RawMessage {
	r := &jsonschema.Reflector{}
	schema := r.Reflect(v)
	out, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return out
}

// ErrSchemaInvalid is the sentinel behind a tool's TOOL_ERROR when the call
// arguments fail schema validation.
type ErrSchemaInvalid struct {
	Tool   string
	Detail error
}

func (e *ErrSchemaInvalid) Error() string {
	return fmt.Sprintf("TOOL_ERROR: %s: arguments do not match parameters_schema: %v", e.Tool, e.Detail)
}

func (e *ErrSchemaInvalid) Unwrap() error { return e.Detail }

// schemaValidator compiles and caches a jsonschema.Schema per tool name,
// grounded on the teacher's ws_schema.go registry (compile-once-at-init,
// lookup-by-name validate) and pluginsdk/validation.go's compileSchema cache.
type schemaValidator struct {
	mu     sync.Mutex
	byName map[string]*validate.Schema
}

func newSchemaValidator() *schemaValidator {
	return &schemaValidator{byName: make(map[string]*validate.Schema)}
}

// validateArgs compiles (once, cached) and validates a tool's parameters
// schema against the call arguments. A nil/empty schema always passes: not
// every tool binding is expected to declare one.
func (v *schemaValidator) validateArgs(toolName string, schema json.RawMessage, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	compiled, err := v.compile(toolName, schema)
	if err != nil {
		return fmt.Errorf("TOOL_ERROR: %s: invalid parameters_schema: %w", toolName, err)
	}

	var payload any
	if len(args) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(args, &payload); err != nil {
		return &ErrSchemaInvalid{Tool: toolName, Detail: err}
	}

	if err := compiled.Validate(payload); err != nil {
		return &ErrSchemaInvalid{Tool: toolName, Detail: err}
	}
	return nil
}

func (v *schemaValidator) compile(toolName string, schema json.RawMessage) (*validate.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok := v.byName[toolName]; ok {
		return compiled, nil
	}

	compiled, err := validate.CompileString(toolName+".schema.json", string(schema))
	if err != nil {
		return nil, err
	}
	v.byName[toolName] = compiled
	return compiled, nil
}
