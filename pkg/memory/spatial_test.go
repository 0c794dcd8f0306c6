package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

func observationWith(tick int, resources []schemas.ResourceInfo, hazards []schemas.HazardInfo) *schemas.Observation {
	return &schemas.Observation{
		AgentID:         "a1",
		Tick:            tick,
		Position:        schemas.Vec3{0, 0, 0},
		NearbyResources: resources,
		NearbyHazards:   hazards,
		Health:          100,
		Energy:          100,
	}
}

func resource(name string, pos schemas.Vec3) schemas.ResourceInfo {
	return schemas.ResourceInfo{Name: name, Type: "berry", Position: pos, Distance: pos.DistanceTo(schemas.Vec3{})}
}

func TestSpatialMemoryStoresObservedObjects(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(10,
		[]schemas.ResourceInfo{resource("berry_001", schemas.Vec3{5, 0, 5})},
		[]schemas.HazardInfo{{Name: "fire_001", Type: "fire", Position: schemas.Vec3{20, 0, 0}, Distance: 20, Damage: 10}},
	))

	assert.Equal(t, 2, m.Len())
	obj, ok := m.Object("berry_001")
	require.True(t, ok)
	assert.Equal(t, schemas.ObjectTypeResource, obj.ObjectType)
	assert.Equal(t, 10, obj.LastSeenTick)

	hazard, ok := m.Object("fire_001")
	require.True(t, ok)
	assert.Equal(t, 10.0, hazard.Damage)
}

func TestSpatialMemoryRecallAfterOutOfSight(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(10,
		[]schemas.ResourceInfo{resource("R", schemas.Vec3{5, 0, 5})}, nil))
	// At tick 20 the resource is out of sight.
	m.UpdateFromObservation(observationWith(20, nil, nil))

	results := m.QueryNearPosition(schemas.Vec3{5, 0, 5}, 1, NearQuery{})
	require.Len(t, results, 1)
	assert.Equal(t, "R", results[0].Object.Name)
	assert.Equal(t, 10, results[0].Object.LastSeenTick)
	assert.Equal(t, 10, results[0].Staleness)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestSpatialMemoryGridConsistency(t *testing.T) {
	m := NewSpatialMemory()
	positions := []schemas.Vec3{{5, 0, 5}, {-15, 3, 95}, {1000, -1000, 0}, {9.99, 9.99, 9.99}}
	for i, pos := range positions {
		m.UpdateFromObservation(observationWith(i+1,
			[]schemas.ResourceInfo{resource(fmt.Sprintf("r%d", i), pos)}, nil))
	}

	for name, obj := range m.objects {
		home := m.posToGrid(obj.Position)
		cells := 0
		for cell, names := range m.grid {
			if _, ok := names[name]; ok {
				cells++
				assert.Equal(t, home, cell, "object %s indexed in wrong cell", name)
			}
		}
		assert.Equal(t, 1, cells, "object %s should be in exactly one cell", name)
	}
}

func TestSpatialMemoryGridMoveUpdatesCells(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(1,
		[]schemas.ResourceInfo{resource("r", schemas.Vec3{5, 0, 5})}, nil))
	m.UpdateFromObservation(observationWith(2,
		[]schemas.ResourceInfo{resource("r", schemas.Vec3{55, 0, 5})}, nil))

	obj, ok := m.Object("r")
	require.True(t, ok)
	assert.Equal(t, schemas.Vec3{55, 0, 5}, obj.Position)

	// Old cell must be gone, new cell must hold the name.
	_, oldExists := m.grid[gridCell{0, 0, 0}]
	assert.False(t, oldExists, "emptied cell should be deleted")
	names := m.grid[gridCell{5, 0, 0}]
	_, ok = names["r"]
	assert.True(t, ok)
}

func TestSpatialMemoryCollectedStatusSurvivesReobservation(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(10,
		[]schemas.ResourceInfo{resource("R", schemas.Vec3{5, 0, 5})}, nil))

	require.True(t, m.MarkCollected("R"))

	// Re-observe at a new position.
	m.UpdateFromObservation(observationWith(11,
		[]schemas.ResourceInfo{resource("R", schemas.Vec3{5, 1, 5})}, nil))

	withCollected := m.QueryNearPosition(schemas.Vec3{5, 1, 5}, 1, NearQuery{IncludeCollected: true})
	require.Len(t, withCollected, 1)
	assert.Equal(t, schemas.Vec3{5, 1, 5}, withCollected[0].Object.Position)
	assert.Equal(t, schemas.StatusCollected, withCollected[0].Object.Status)

	withoutCollected := m.QueryNearPosition(schemas.Vec3{5, 1, 5}, 1, NearQuery{})
	assert.Empty(t, withoutCollected)
}

func TestSpatialMemoryMarkUnknownObject(t *testing.T) {
	m := NewSpatialMemory()
	assert.False(t, m.MarkCollected("ghost"))
	assert.False(t, m.MarkDestroyed("ghost"))
}

func TestSpatialMemoryQueryFilters(t *testing.T) {
	m := NewSpatialMemory(WithStaleThreshold(5))
	m.UpdateFromObservation(observationWith(1,
		[]schemas.ResourceInfo{resource("berry", schemas.Vec3{1, 0, 0})},
		[]schemas.HazardInfo{{Name: "fire", Type: "fire", Position: schemas.Vec3{2, 0, 0}, Distance: 2, Damage: 5}}))
	// Advance far enough for tick-1 objects to go stale.
	m.UpdateFromObservation(observationWith(20, nil, nil))

	byType := m.QueryNearPosition(schemas.Vec3{0, 0, 0}, 10, NearQuery{ObjectType: schemas.ObjectTypeHazard})
	require.Len(t, byType, 1)
	assert.Equal(t, "fire", byType[0].Object.Name)

	// Stale objects included by default, excluded on request.
	all := m.QueryNearPosition(schemas.Vec3{0, 0, 0}, 10, NearQuery{})
	assert.Len(t, all, 2)
	fresh := m.QueryNearPosition(schemas.Vec3{0, 0, 0}, 10, NearQuery{ExcludeStale: true})
	assert.Empty(t, fresh)

	// Radius bound.
	near := m.QueryNearPosition(schemas.Vec3{0, 0, 0}, 1.5, NearQuery{})
	require.Len(t, near, 1)
	assert.Equal(t, "berry", near[0].Object.Name)
}

func TestSpatialMemoryQueryResultsSortedByDistance(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(1, []schemas.ResourceInfo{
		resource("far", schemas.Vec3{9, 0, 0}),
		resource("near", schemas.Vec3{1, 0, 0}),
		resource("mid", schemas.Vec3{4, 0, 0}),
	}, nil))

	results := m.QueryNearPosition(schemas.Vec3{0, 0, 0}, 50, NearQuery{})
	require.Len(t, results, 3)
	assert.Equal(t, "near", results[0].Object.Name)
	assert.Equal(t, "mid", results[1].Object.Name)
	assert.Equal(t, "far", results[2].Object.Name)
}

func TestSpatialMemoryQueryByType(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(1,
		[]schemas.ResourceInfo{
			{Name: "berry", Type: "berry", Position: schemas.Vec3{1, 0, 0}, Distance: 1},
			{Name: "apple", Type: "apple", Position: schemas.Vec3{2, 0, 0}, Distance: 2},
		},
		nil))
	m.MarkCollected("apple")

	berries := m.QueryByType(schemas.ObjectTypeResource, "berry", false)
	require.Len(t, berries, 1)
	assert.Equal(t, "berry", berries[0].Name)

	active := m.QueryByType(schemas.ObjectTypeResource, "", false)
	assert.Len(t, active, 1)
	all := m.QueryByType(schemas.ObjectTypeResource, "", true)
	assert.Len(t, all, 2)
}

func TestSpatialMemoryTickResetDetection(t *testing.T) {
	m := NewSpatialMemory()
	assert.False(t, m.UpdateFromObservation(observationWith(5, nil, nil)), "first observation is never a reset")
	assert.False(t, m.UpdateFromObservation(observationWith(5, nil, nil)), "equal tick is not a reset")
	assert.False(t, m.UpdateFromObservation(observationWith(9, nil, nil)))
	assert.True(t, m.UpdateFromObservation(observationWith(2, nil, nil)), "tick decrease signals a new episode")
	assert.False(t, m.UpdateFromObservation(observationWith(3, nil, nil)))
}

func TestSpatialMemoryExperienceLog(t *testing.T) {
	m := NewSpatialMemory(WithMaxExperiences(3))
	for i := 0; i < 5; i++ {
		m.RecordExperience(&schemas.ExperienceEvent{
			Tick:        i,
			EventType:   schemas.EventDamage,
			Description: fmt.Sprintf("ouch %d", i),
			Position:    schemas.Vec3{0, 0, 0},
			DamageTaken: 1,
		})
	}
	recent := m.RecentExperiences(0)
	require.Len(t, recent, 3, "log is bounded, oldest evicted")
	assert.Equal(t, 2, recent[0].Tick)
	assert.Equal(t, 4, recent[2].Tick, "newest last")

	limited := m.RecentExperiences(2)
	require.Len(t, limited, 2)
	assert.Equal(t, 3, limited[0].Tick)
}

func TestSpatialMemoryCollisionCreatesObstacle(t *testing.T) {
	m := NewSpatialMemory()
	m.RecordExperience(&schemas.ExperienceEvent{
		Tick:        4,
		EventType:   schemas.EventCollision,
		Description: "walked into a wall",
		Position:    schemas.Vec3{7, 0, 7},
		ObjectName:  "wall_7_7",
	})

	obj, ok := m.Object("wall_7_7")
	require.True(t, ok)
	assert.Equal(t, schemas.ObjectTypeObstacle, obj.ObjectType)
	assert.Equal(t, schemas.Vec3{7, 0, 7}, obj.Position)

	// Obstacles are found by proximity queries so planners can route around.
	results := m.QueryNearPosition(schemas.Vec3{7, 0, 7}, 1, NearQuery{ObjectType: schemas.ObjectTypeObstacle})
	require.Len(t, results, 1)
}

func TestSpatialMemoryClear(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(3,
		[]schemas.ResourceInfo{resource("r", schemas.Vec3{1, 0, 0})}, nil))
	m.RecordExperience(&schemas.ExperienceEvent{Tick: 3, EventType: schemas.EventDamage, Description: "x"})

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.grid)
	assert.Empty(t, m.RecentExperiences(0))
	_, seen := m.LastTick()
	assert.False(t, seen, "clear resets the episode tick baseline")
}

func TestSpatialMemorySummarizeAndDump(t *testing.T) {
	m := NewSpatialMemory()
	m.UpdateFromObservation(observationWith(2,
		[]schemas.ResourceInfo{resource("berry_1", schemas.Vec3{1, 0, 0})},
		[]schemas.HazardInfo{{Name: "fire_1", Type: "fire", Position: schemas.Vec3{3, 0, 0}, Distance: 3, Damage: 12}}))

	summary := m.Summarize()
	assert.Contains(t, summary, "2 objects known")
	assert.Contains(t, summary, "berry_1")
	assert.Contains(t, summary, "fire_1")

	dump := m.Dump()
	assert.Equal(t, "SpatialMemory", dump["type"])
	stats := dump["stats"].(map[string]any)
	assert.Equal(t, 2, stats["total_objects"])
	assert.Equal(t, 2, stats["current_tick"])
}

func TestSpatialMemorySemanticQuery(t *testing.T) {
	m := NewSpatialMemory(WithSemanticIndex(NewHashEmbedding(64), 0.05))
	m.UpdateFromObservation(observationWith(1,
		[]schemas.ResourceInfo{
			{Name: "berry_001", Type: "berry", Position: schemas.Vec3{1, 0, 0}, Distance: 1},
		},
		[]schemas.HazardInfo{
			{Name: "fire_001", Type: "fire", Position: schemas.Vec3{5, 0, 0}, Distance: 5, Damage: 10},
		}))

	results := m.QuerySemantic("hazard named fire_001", 1, false)
	require.Len(t, results, 1)
	assert.Equal(t, "fire_001", results[0].Object.Name)
	assert.Greater(t, results[0].Score, 0.05)

	// Collected objects drop out unless requested.
	m.MarkCollected("berry_001")
	results = m.QuerySemantic("resource named berry_001", 5, false)
	for _, r := range results {
		assert.NotEqual(t, "berry_001", r.Object.Name)
	}
}

func TestSpatialMemoryWithoutSemanticIndex(t *testing.T) {
	m := NewSpatialMemory()
	assert.Nil(t, m.QuerySemantic("anything", 5, false))
}
