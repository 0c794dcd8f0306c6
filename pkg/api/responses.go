package api

import "github.com/justinternetai/arena-runtime/pkg/schemas"

// ObserveResponse is the decision returned for a single observation.
type ObserveResponse struct {
	AgentID   string         `json:"agent_id"`
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	Reasoning string         `json:"reasoning"`
}

// ActionEntry pairs an agent with its decided action.
type ActionEntry struct {
	AgentID string            `json:"agent_id"`
	Action  *schemas.Decision `json:"action"`
}

// TickResponse carries one action per requested agent, in request order.
type TickResponse struct {
	Tick    int           `json:"tick"`
	Actions []ActionEntry `json:"actions"`
}

// ToolExecuteResponse acknowledges a tool-execution notification.
type ToolExecuteResponse struct {
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error"`
}
