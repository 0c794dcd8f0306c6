package schemas

// ToolIdle is the sentinel tool meaning "do nothing this tick".
const ToolIdle = "idle"

// Decision is what a behavior returns to the host each tick: which tool to
// invoke, with what parameters, and an optional human-readable explanation.
type Decision struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// Idle creates a no-op decision with an optional explanation.
func Idle(reasoning string) *Decision {
	return &Decision{Tool: ToolIdle, Params: map[string]any{}, Reasoning: reasoning}
}

// NewDecision creates a decision for the given tool. A nil params map is
// normalized to an empty one so the wire form is always an object.
func NewDecision(tool string, params map[string]any, reasoning string) *Decision {
	if params == nil {
		params = map[string]any{}
	}
	return &Decision{Tool: tool, Params: params, Reasoning: reasoning}
}
