package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleObservationJSON() []byte {
	return []byte(`{
		"agent_id": "forager_001",
		"tick": 42,
		"position": [1.5, 0, -3.25],
		"rotation": [0, 90, 0],
		"velocity": null,
		"visible_entities": [
			{"id": "agent_002", "type": "agent", "position": [4, 0, 4], "distance": 5.1, "metadata": {"team": "red"}}
		],
		"nearby_resources": [
			{"name": "berry_001", "type": "berry", "position": [2, 0, 2], "distance": 2.3}
		],
		"nearby_hazards": [
			{"name": "fire_001", "type": "fire", "position": [8, 0, 1], "distance": 7.9, "damage": 10}
		],
		"nearby_stations": [
			{"name": "depot_001", "type": "depot", "position": [0, 0, 9], "distance": 9.5}
		],
		"inventory": [{"id": "itm_1", "name": "apple"}],
		"health": 87.5,
		"energy": 64,
		"exploration": {
			"exploration_percentage": 12.5,
			"total_cells": 400,
			"seen_cells": 50,
			"frontiers_by_direction": {"north": 14},
			"explore_targets": [{"direction": "north", "distance": 14, "position": [0, 0, 20]}]
		},
		"scenario_name": "foraging",
		"objective": {
			"description": "Collect berries",
			"success_metrics": {"berries": {"target": 10, "required": true}},
			"time_limit": 600
		},
		"current_progress": {"berries": 3},
		"custom": {"weather": "rain"}
	}`)
}

func TestParseObservation(t *testing.T) {
	obs, err := ParseObservation(sampleObservationJSON())
	require.NoError(t, err)

	assert.Equal(t, "forager_001", obs.AgentID)
	assert.Equal(t, 42, obs.Tick)
	assert.Equal(t, Vec3{1.5, 0, -3.25}, obs.Position)
	require.NotNil(t, obs.Rotation)
	assert.Equal(t, Vec3{0, 90, 0}, *obs.Rotation)
	assert.Nil(t, obs.Velocity)

	require.Len(t, obs.VisibleEntities, 1)
	assert.Equal(t, "agent_002", obs.VisibleEntities[0].ID)
	assert.Equal(t, "red", obs.VisibleEntities[0].Metadata["team"])

	require.Len(t, obs.NearbyResources, 1)
	assert.Equal(t, "berry_001", obs.NearbyResources[0].Name)
	require.Len(t, obs.NearbyHazards, 1)
	assert.Equal(t, 10.0, obs.NearbyHazards[0].Damage)
	require.Len(t, obs.NearbyStations, 1)
	assert.Equal(t, "depot_001", obs.NearbyStations[0].Name)

	// Missing quantity defaults to 1.
	require.Len(t, obs.Inventory, 1)
	assert.Equal(t, 1, obs.Inventory[0].Quantity)

	assert.Equal(t, 87.5, obs.Health)
	assert.Equal(t, 64.0, obs.Energy)
	assert.Equal(t, "foraging", obs.ScenarioName)

	require.NotNil(t, obs.Objective)
	assert.Equal(t, "Collect berries", obs.Objective.Description)
	metric := obs.Objective.SuccessMetrics["berries"]
	assert.Equal(t, 10.0, metric.Target)
	assert.Equal(t, 1.0, metric.Weight, "weight should default to 1.0")
	assert.True(t, metric.Required)

	assert.Equal(t, 3.0, obs.CurrentProgress["berries"])
	assert.Equal(t, "rain", obs.Custom["weather"])
	require.NotNil(t, obs.Exploration)
	assert.Equal(t, 12.5, obs.Exploration.ExplorationPercentage)
}

func TestParseObservationDefaults(t *testing.T) {
	obs, err := ParseObservation([]byte(`{"agent_id": "a1", "tick": 0, "position": [0, 0, 0]}`))
	require.NoError(t, err)
	assert.Equal(t, 100.0, obs.Health)
	assert.Equal(t, 100.0, obs.Energy)
	assert.Empty(t, obs.NearbyResources)
}

func TestParseObservationValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing agent_id", `{"tick": 1, "position": [0,0,0]}`},
		{"empty agent_id", `{"agent_id": "", "tick": 1, "position": [0,0,0]}`},
		{"missing tick", `{"agent_id": "a1", "position": [0,0,0]}`},
		{"negative tick", `{"agent_id": "a1", "tick": -1, "position": [0,0,0]}`},
		{"missing position", `{"agent_id": "a1", "tick": 1}`},
		{"negative distance", `{"agent_id": "a1", "tick": 1, "position": [0,0,0],
			"nearby_resources": [{"name": "r", "type": "t", "position": [1,1,1], "distance": -2}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseObservation([]byte(tc.body))
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestObservationRoundTrip(t *testing.T) {
	obs, err := ParseObservation(sampleObservationJSON())
	require.NoError(t, err)

	encoded, err := json.Marshal(obs)
	require.NoError(t, err)

	decoded, err := ParseObservation(encoded)
	require.NoError(t, err)
	assert.Equal(t, obs, decoded)
}

func TestDecisionRoundTrip(t *testing.T) {
	d := NewDecision("move_to", map[string]any{"target_position": []any{1.0, 2.0, 3.0}}, "heading out")
	encoded, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded Decision
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, *d, decoded)
}

func TestDecisionIdleOmitsEmptyReasoning(t *testing.T) {
	encoded, err := json.Marshal(Idle(""))
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "reasoning")
	assert.Contains(t, string(encoded), `"params":{}`)
}

func TestVec3Distance(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{3, 4, 0}
	assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-9)
}
