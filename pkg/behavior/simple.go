package behavior

import (
	"context"
	"math"

	"github.com/justinternetai/arena-runtime/pkg/memory"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

// escapeDistance is how far the inferred move_to escapes from a hazard.
const escapeDistance = 5.0

// SimpleDecider is the beginner-tier contract: look at a reduced context,
// return a tool name. The framework fills in parameters.
type SimpleDecider interface {
	DecideSimple(ctx *schemas.SimpleContext) string
}

// Simple adapts a SimpleDecider to the full Behavior contract. It keeps a
// sliding window of observations and infers tool parameters from the
// context with fixed heuristics.
type Simple struct {
	Base
	decider SimpleDecider
	window  *memory.SlidingWindow
	goal    string
}

// NewSimple wraps a SimpleDecider. windowCapacity <= 0 uses the default.
func NewSimple(decider SimpleDecider, windowCapacity int) (*Simple, error) {
	if windowCapacity <= 0 {
		windowCapacity = memory.DefaultWindowCapacity
	}
	window, err := memory.NewSlidingWindow(windowCapacity)
	if err != nil {
		return nil, err
	}
	return &Simple{decider: decider, window: window}, nil
}

// SetGoal sets the goal text surfaced in the simple context.
func (s *Simple) SetGoal(goal string) { s.goal = goal }

// Window exposes the sliding-window memory.
func (s *Simple) Window() *memory.SlidingWindow { return s.window }

// Decide converts the observation to a SimpleContext, asks the decider for
// a tool name, and infers the parameters.
func (s *Simple) Decide(_ context.Context, obs *schemas.Observation, tools []schemas.ToolSchema) (*schemas.Decision, error) {
	s.window.Store(obs)
	sctx := schemas.NewSimpleContext(obs, s.goal)
	tool := s.decider.DecideSimple(sctx)
	return schemas.NewDecision(tool, InferParameters(tool, sctx), ""), nil
}

// OnEpisodeStart clears the observation window.
func (s *Simple) OnEpisodeStart() {
	s.window.Clear()
}

// InferParameters fills tool parameters from a simple context:
//
//   - move_to: the nearest resource; else an escape point 5 units along the
//     hazard→agent vector from the nearest hazard (arbitrary direction when
//     standing on it); else the agent's own position
//   - pickup: the nearest resource by name
//   - drop/use: the first inventory item
//   - anything else: empty params
func InferParameters(tool string, sctx *schemas.SimpleContext) map[string]any {
	switch tool {
	case "move_to":
		if r := nearestResource(sctx.NearbyResources); r != nil {
			return map[string]any{"target_position": positionList(r.Position)}
		}
		if h := nearestHazard(sctx.NearbyHazards); h != nil {
			return map[string]any{"target_position": positionList(escapePosition(sctx.Position, h.Position))}
		}
		return map[string]any{"target_position": positionList(sctx.Position)}
	case "pickup":
		if r := nearestResource(sctx.NearbyResources); r != nil {
			return map[string]any{"item_id": r.Name}
		}
		return map[string]any{}
	case "drop", "use":
		if len(sctx.Inventory) > 0 {
			return map[string]any{"item_name": sctx.Inventory[0]}
		}
		return map[string]any{}
	default:
		return map[string]any{}
	}
}

func nearestResource(resources []schemas.ResourceInfo) *schemas.ResourceInfo {
	var nearest *schemas.ResourceInfo
	best := math.Inf(1)
	for i := range resources {
		if resources[i].Distance < best {
			best = resources[i].Distance
			nearest = &resources[i]
		}
	}
	return nearest
}

func nearestHazard(hazards []schemas.HazardInfo) *schemas.HazardInfo {
	var nearest *schemas.HazardInfo
	best := math.Inf(1)
	for i := range hazards {
		if hazards[i].Distance < best {
			best = hazards[i].Distance
			nearest = &hazards[i]
		}
	}
	return nearest
}

// escapePosition computes a point escapeDistance units from the agent along
// the hazard→agent vector. When the agent stands exactly on the hazard the
// direction is arbitrary.
func escapePosition(agent, hazard schemas.Vec3) schemas.Vec3 {
	dx := agent[0] - hazard[0]
	dy := agent[1] - hazard[1]
	dz := agent[2] - hazard[2]
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if dist == 0 {
		return schemas.Vec3{agent[0] + escapeDistance, agent[1], agent[2]}
	}
	return schemas.Vec3{
		agent[0] + dx/dist*escapeDistance,
		agent[1] + dy/dist*escapeDistance,
		agent[2] + dz/dist*escapeDistance,
	}
}

func positionList(v schemas.Vec3) []any {
	return []any{v[0], v[1], v[2]}
}
