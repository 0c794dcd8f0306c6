package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolSchema describes a capability the host advertises to agents. The
// parameters block is JSON-Schema shaped; tools are executed by the host,
// never by the runtime.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToOpenAIFormat converts to the OpenAI function-calling wire shape.
func (t ToolSchema) ToOpenAIFormat() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		},
	}
}

// ToAnthropicFormat converts to the Anthropic tool-calling wire shape.
func (t ToolSchema) ToAnthropicFormat() map[string]any {
	return map[string]any{
		"name":         t.Name,
		"description":  t.Description,
		"input_schema": t.Parameters,
	}
}

// CompileParameters compiles the parameters block as a JSON Schema. Used to
// reject malformed tool registrations early and to validate tool params.
func (t ToolSchema) CompileParameters() (*jsonschema.Schema, error) {
	if t.Parameters == nil {
		return nil, nil
	}
	// Round-trip through encoding/json so the compiler sees plain JSON values
	// (json.Number, map[string]any) rather than arbitrary Go types.
	raw, err := json.Marshal(t.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateParams validates a params map against the tool's parameter schema.
// Tools without a parameters block accept anything.
func (t ToolSchema) ValidateParams(params map[string]any) error {
	schema, err := t.CompileParameters()
	if err != nil || schema == nil {
		return err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}
	return schema.Validate(doc)
}

// ToolRegistry holds the tool schemas the server advertises to behaviors.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolSchema
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolSchema)}
}

// Register adds or replaces a tool schema. The parameters block must compile
// as a JSON Schema.
func (r *ToolRegistry) Register(tool ToolSchema) error {
	if tool.Name == "" {
		return NewValidationError("name", "required")
	}
	if _, err := tool.CompileParameters(); err != nil {
		return NewValidationError("parameters", err.Error())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool schema by name.
func (r *ToolRegistry) Get(name string) (ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *ToolRegistry) List() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
