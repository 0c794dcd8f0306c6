// Package behavior defines the decision contract user code implements and
// the adapter tiers the framework ships: a full adapter (implement Decide
// yourself), a simplified adapter (return a tool name, the framework infers
// parameters), and an LLM adapter (prompt building, backend invocation, and
// resilient response parsing).
package behavior

import (
	"context"

	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

// Behavior is the decision contract. Decide is called once per tick per
// agent with the parsed observation and the advertised tool list; the
// lifecycle hooks have no-op defaults via Base and are called
// unconditionally by the framework.
type Behavior interface {
	// Decide chooses the action for this tick.
	Decide(ctx context.Context, obs *schemas.Observation, tools []schemas.ToolSchema) (*schemas.Decision, error)

	// OnEpisodeStart is called when a new episode begins.
	OnEpisodeStart()

	// OnEpisodeEnd is called when an episode ends.
	OnEpisodeEnd(success bool, metrics map[string]float64)

	// OnToolResult is called after the host executed a tool.
	OnToolResult(tool string, result map[string]any)
}

// Base provides no-op lifecycle hooks. Embed it so a behavior only has to
// implement Decide.
type Base struct{}

// OnEpisodeStart is a no-op.
func (Base) OnEpisodeStart() {}

// OnEpisodeEnd is a no-op.
func (Base) OnEpisodeEnd(bool, map[string]float64) {}

// OnToolResult is a no-op.
func (Base) OnToolResult(string, map[string]any) {}

// Func adapts a plain decide function into a Behavior.
type Func func(ctx context.Context, obs *schemas.Observation, tools []schemas.ToolSchema) (*schemas.Decision, error)

// Decide calls the wrapped function.
func (f Func) Decide(ctx context.Context, obs *schemas.Observation, tools []schemas.ToolSchema) (*schemas.Decision, error) {
	return f(ctx, obs, tools)
}

// OnEpisodeStart is a no-op.
func (Func) OnEpisodeStart() {}

// OnEpisodeEnd is a no-op.
func (Func) OnEpisodeEnd(bool, map[string]float64) {}

// OnToolResult is a no-op.
func (Func) OnToolResult(string, map[string]any) {}
