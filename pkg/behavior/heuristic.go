package behavior

import (
	"context"
	"fmt"
	"math"

	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

// Heuristic rule thresholds.
const (
	hazardAvoidDistance  = 3.0
	resourceCollectRange = 5.0
	hazardEscapeDistance = 5.0
	avoidMoveSpeed       = 2.0
	collectMoveSpeed     = 1.5
)

// Heuristic is a rule-based behavior useful for wiring tests and as a
// fallback when no model backend is configured. Priorities:
//
//  1. escape any hazard closer than 3 units (move 5 units along the
//     hazard→agent vector)
//  2. move to the nearest resource within 5 units
//  3. idle
type Heuristic struct {
	Base
}

// NewHeuristic creates the rule-based behavior.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// Decide applies the avoid/collect/idle rules.
func (h *Heuristic) Decide(_ context.Context, obs *schemas.Observation, _ []schemas.ToolSchema) (*schemas.Decision, error) {
	for _, hazard := range obs.NearbyHazards {
		if hazard.Distance >= hazardAvoidDistance {
			continue
		}
		dx := obs.Position[0] - hazard.Position[0]
		dz := obs.Position[2] - hazard.Position[2]
		length := math.Sqrt(dx*dx + dz*dz)
		if length > 0 {
			dx = dx / length * hazardEscapeDistance
			dz = dz / length * hazardEscapeDistance
		} else {
			// Standing on the hazard; any direction works.
			dx, dz = hazardEscapeDistance, 0
		}
		safe := []any{
			hazard.Position[0] + dx,
			obs.Position[1],
			hazard.Position[2] + dz,
		}
		return schemas.NewDecision("move_to",
			map[string]any{"target_position": safe, "speed": avoidMoveSpeed},
			fmt.Sprintf("Avoiding nearby %s hazard at distance %.1f", hazard.Type, hazard.Distance),
		), nil
	}

	if r := nearestResource(obs.NearbyResources); r != nil && r.Distance < resourceCollectRange {
		return schemas.NewDecision("move_to",
			map[string]any{"target_position": positionList(r.Position), "speed": collectMoveSpeed},
			fmt.Sprintf("Moving to collect %s (%s) at distance %.1f", r.Type, r.Name, r.Distance),
		), nil
	}

	return schemas.Idle("No immediate actions needed - exploring environment"), nil
}
