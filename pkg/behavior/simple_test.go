package behavior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

func simpleContext() *schemas.SimpleContext {
	return &schemas.SimpleContext{
		Position: schemas.Vec3{0, 0, 0},
		NearbyResources: []schemas.ResourceInfo{
			{Name: "far_berry", Type: "berry", Position: schemas.Vec3{8, 0, 0}, Distance: 8},
			{Name: "near_berry", Type: "berry", Position: schemas.Vec3{2, 0, 0}, Distance: 2},
		},
		NearbyHazards: []schemas.HazardInfo{
			{Name: "fire", Type: "fire", Position: schemas.Vec3{1, 0, 0}, Distance: 1, Damage: 10},
		},
		Inventory: []string{"apple", "rock"},
	}
}

func TestInferMoveToTargetsNearestResource(t *testing.T) {
	params := InferParameters("move_to", simpleContext())
	assert.Equal(t, []any{2.0, 0.0, 0.0}, params["target_position"])
}

func TestInferMoveToEscapesHazard(t *testing.T) {
	sctx := simpleContext()
	sctx.NearbyResources = nil
	params := InferParameters("move_to", sctx)

	// Hazard at (1,0,0), agent at origin: escape along (-1,0,0) by 5 units.
	pos, ok := params["target_position"].([]any)
	require.True(t, ok)
	assert.InDelta(t, -5.0, pos[0].(float64), 1e-9)
	assert.InDelta(t, 0.0, pos[1].(float64), 1e-9)
	assert.InDelta(t, 0.0, pos[2].(float64), 1e-9)
}

func TestInferMoveToOnTopOfHazard(t *testing.T) {
	sctx := &schemas.SimpleContext{
		Position: schemas.Vec3{3, 0, 3},
		NearbyHazards: []schemas.HazardInfo{
			{Name: "fire", Type: "fire", Position: schemas.Vec3{3, 0, 3}, Distance: 0, Damage: 10},
		},
	}
	params := InferParameters("move_to", sctx)
	pos, ok := params["target_position"].([]any)
	require.True(t, ok)
	// Arbitrary direction, but it must actually move.
	assert.NotEqual(t, []any{3.0, 0.0, 3.0}, pos)
}

func TestInferMoveToWithNothingNearby(t *testing.T) {
	sctx := &schemas.SimpleContext{Position: schemas.Vec3{4, 1, 4}}
	params := InferParameters("move_to", sctx)
	assert.Equal(t, []any{4.0, 1.0, 4.0}, params["target_position"])
}

func TestInferPickup(t *testing.T) {
	params := InferParameters("pickup", simpleContext())
	assert.Equal(t, "near_berry", params["item_id"])

	empty := InferParameters("pickup", &schemas.SimpleContext{})
	assert.Empty(t, empty)
}

func TestInferDropAndUse(t *testing.T) {
	params := InferParameters("drop", simpleContext())
	assert.Equal(t, "apple", params["item_name"])

	params = InferParameters("use", simpleContext())
	assert.Equal(t, "apple", params["item_name"])

	assert.Empty(t, InferParameters("drop", &schemas.SimpleContext{}))
	assert.Empty(t, InferParameters("use", &schemas.SimpleContext{}))
}

func TestInferUnknownTool(t *testing.T) {
	assert.Empty(t, InferParameters("dance", simpleContext()))
}

type pickupDecider struct{}

func (pickupDecider) DecideSimple(sctx *schemas.SimpleContext) string {
	if len(sctx.NearbyResources) > 0 {
		return "pickup"
	}
	return "idle"
}

func TestSimpleAdapter(t *testing.T) {
	s, err := NewSimple(pickupDecider{}, 3)
	require.NoError(t, err)

	obs := &schemas.Observation{
		AgentID:  "a1",
		Tick:     1,
		Position: schemas.Vec3{0, 0, 0},
		NearbyResources: []schemas.ResourceInfo{
			{Name: "berry_001", Type: "berry", Position: schemas.Vec3{1, 0, 0}, Distance: 1},
		},
	}
	d, err := s.Decide(context.Background(), obs, nil)
	require.NoError(t, err)
	assert.Equal(t, "pickup", d.Tool)
	assert.Equal(t, "berry_001", d.Params["item_id"])
	assert.Equal(t, 1, s.Window().Len())

	s.OnEpisodeStart()
	assert.Equal(t, 0, s.Window().Len())
}
