// Package runtime hosts the tick pipeline core: the per-agent frame that
// wraps user behaviors with framework pre/post hooks (world-map update,
// trace capture, episode lifecycle) and the dispatcher that fans a tick's
// observations out to a bounded worker pool.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/justinternetai/arena-runtime/pkg/behavior"
	"github.com/justinternetai/arena-runtime/pkg/memory"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// Agent binds a behavior to its framework-managed state: the spatial world
// map and the trace plumbing. Each agent owns its state exclusively; the
// pipeline serializes decide calls per agent, so no locking is needed here.
type Agent struct {
	ID       string
	Behavior behavior.Behavior
	WorldMap *memory.SpatialMemory

	traces *trace.Store // nil when tracing is disabled
}

// StartEpisode begins a new episode: the world map is cleared, the trace
// store rotates to a new episode file, and the behavior's hook runs.
func (a *Agent) StartEpisode(episodeID string) {
	a.WorldMap.Clear()
	if a.traces != nil {
		a.traces.SetEpisode(a.ID, episodeID)
	}
	a.Behavior.OnEpisodeStart()
}

// EndEpisode finalizes any pending trace and runs the behavior's hook.
func (a *Agent) EndEpisode(success bool, metrics map[string]float64) {
	if a.traces != nil {
		a.traces.EndTrace(a.ID)
	}
	a.Behavior.OnEpisodeEnd(success, metrics)
}

// HandleToolResult forwards a host-side tool execution result.
func (a *Agent) HandleToolResult(tool string, result map[string]any) {
	a.Behavior.OnToolResult(tool, result)
}

// Decide runs the full decision frame for one observation:
//
//  1. tick regression closes the previous episode and starts a fresh one
//  2. the world map absorbs the observation
//  3. a trace is opened and exposed through the context so the behavior can
//     append steps during decide
//  4. decide runs; a panic or error degrades to an idle decision
//  5. the trace is finalized and persisted
//
// The finished trace (nil when tracing is off) is returned alongside the
// decision so the debug surface can ring-buffer it.
func (a *Agent) Decide(ctx context.Context, obs *schemas.Observation, tools []schemas.ToolSchema) (*schemas.Decision, *trace.ReasoningTrace) {
	if last, seen := a.WorldMap.LastTick(); seen && obs.Tick < last {
		slog.Info("Tick regression, starting new episode",
			"agent_id", a.ID, "prev_tick", last, "tick", obs.Tick)
		a.EndEpisode(false, nil)
		a.StartEpisode("")
	}
	a.WorldMap.UpdateFromObservation(obs)

	var t *trace.ReasoningTrace
	if a.traces != nil {
		t = a.traces.StartTrace(a.ID, obs.Tick)
		t.AddStep("observation", map[string]any{
			"position":         []any{obs.Position[0], obs.Position[1], obs.Position[2]},
			"health":           obs.Health,
			"energy":           obs.Energy,
			"nearby_resources": len(obs.NearbyResources),
			"nearby_hazards":   len(obs.NearbyHazards),
		})
		ctx = trace.NewContext(ctx, t)
	}

	decision, err := a.safeDecide(ctx, obs, tools)
	if err != nil {
		slog.Error("Behavior decide failed", "agent_id", a.ID, "tick", obs.Tick, "error", err)
		decision = schemas.Idle(fmt.Sprintf("Error: %v", err))
	}

	var finished *trace.ReasoningTrace
	if t != nil {
		t.AddStep("decision", map[string]any{
			"tool":      decision.Tool,
			"params":    decision.Params,
			"reasoning": decision.Reasoning,
		})
		finished = a.traces.EndTrace(a.ID)
	}
	return decision, finished
}

// safeDecide invokes the behavior, converting panics into errors so one
// agent's failure never takes down the tick.
func (a *Agent) safeDecide(ctx context.Context, obs *schemas.Observation, tools []schemas.ToolSchema) (d *schemas.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("behavior panicked: %v", r)
		}
	}()
	d, err = a.Behavior.Decide(ctx, obs, tools)
	if err == nil && d == nil {
		err = fmt.Errorf("behavior returned no decision")
	}
	return d, err
}
