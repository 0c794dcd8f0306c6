package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinternetai/arena-runtime/pkg/behavior"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

func testObservation(agentID string, tick int) *schemas.Observation {
	return &schemas.Observation{
		AgentID:  agentID,
		Tick:     tick,
		Position: schemas.Vec3{0, 0, 0},
		Health:   100,
		Energy:   100,
	}
}

func echoBehavior() behavior.Behavior {
	return behavior.Func(func(_ context.Context, obs *schemas.Observation, _ []schemas.ToolSchema) (*schemas.Decision, error) {
		return schemas.NewDecision("echo", map[string]any{"tick": obs.Tick}, obs.AgentID), nil
	})
}

func TestDecideOneUnknownAgent(t *testing.T) {
	rt := New(Options{})
	_, _, err := rt.DecideOne(context.Background(), testObservation("ghost", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrNotFound)
}

func TestDecideOneRunsFrame(t *testing.T) {
	rt := New(Options{})
	rt.Register("a1", echoBehavior())

	obs := testObservation("a1", 3)
	obs.NearbyResources = []schemas.ResourceInfo{
		{Name: "berry", Type: "berry", Position: schemas.Vec3{1, 0, 0}, Distance: 1},
	}
	d, _, err := rt.DecideOne(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, "echo", d.Tool)

	// The framework pre-hook fed the observation into the world map.
	agent, ok := rt.Agent("a1")
	require.True(t, ok)
	_, found := agent.WorldMap.Object("berry")
	assert.True(t, found)
}

func TestProcessTickCompletenessAndOrder(t *testing.T) {
	rt := New(Options{MaxWorkers: 2})
	for i := 0; i < 5; i++ {
		rt.Register(fmt.Sprintf("agent_%d", i), echoBehavior())
	}

	entries := make([]TickEntry, 5)
	for i := range entries {
		id := fmt.Sprintf("agent_%d", 4-i) // deliberately not registration order
		entries[i] = TickEntry{AgentID: id, Observation: testObservation(id, 7)}
	}

	results := rt.ProcessTick(context.Background(), 7, entries)
	require.Len(t, results, 5, "one action per requested agent")
	for i, r := range results {
		assert.Equal(t, entries[i].AgentID, r.AgentID, "request order preserved")
		require.NotNil(t, r.Decision)
		assert.Equal(t, entries[i].AgentID, r.Decision.Reasoning)
	}
}

func TestProcessTickMissingBehaviorDegradesToIdle(t *testing.T) {
	rt := New(Options{})
	rt.Register("a1", echoBehavior())

	entries := []TickEntry{
		{AgentID: "a1", Observation: testObservation("a1", 5)},
		{AgentID: "a2", Observation: testObservation("a2", 5)},
	}
	results := rt.ProcessTick(context.Background(), 5, entries)
	require.Len(t, results, 2)

	assert.Equal(t, "echo", results[0].Decision.Tool)
	assert.Equal(t, schemas.ToolIdle, results[1].Decision.Tool)
	assert.Contains(t, results[1].Decision.Reasoning, "a2")
}

func TestProcessTickParseErrorDegradesToIdle(t *testing.T) {
	rt := New(Options{})
	rt.Register("a1", echoBehavior())

	entries := []TickEntry{
		{AgentID: "a1", Err: schemas.NewValidationError("position", "required")},
	}
	results := rt.ProcessTick(context.Background(), 1, entries)
	require.Len(t, results, 1)
	assert.Equal(t, schemas.ToolIdle, results[0].Decision.Tool)
	assert.Contains(t, results[0].Decision.Reasoning, "position")
}

func TestProcessTickContainsPanics(t *testing.T) {
	rt := New(Options{})
	rt.Register("bad", behavior.Func(func(context.Context, *schemas.Observation, []schemas.ToolSchema) (*schemas.Decision, error) {
		panic("boom")
	}))
	rt.Register("good", echoBehavior())

	entries := []TickEntry{
		{AgentID: "bad", Observation: testObservation("bad", 1)},
		{AgentID: "good", Observation: testObservation("good", 1)},
	}
	results := rt.ProcessTick(context.Background(), 1, entries)
	require.Len(t, results, 2)
	assert.Equal(t, schemas.ToolIdle, results[0].Decision.Tool)
	assert.Contains(t, results[0].Decision.Reasoning, "boom")
	assert.Equal(t, "echo", results[1].Decision.Tool, "sibling agents keep their actions")
}

func TestProcessTickRespectsWorkerBound(t *testing.T) {
	const workers = 2
	var active, peak int64
	var mu sync.Mutex

	slow := behavior.Func(func(context.Context, *schemas.Observation, []schemas.ToolSchema) (*schemas.Decision, error) {
		n := atomic.AddInt64(&active, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return schemas.Idle(""), nil
	})

	rt := New(Options{MaxWorkers: workers})
	entries := make([]TickEntry, 6)
	for i := range entries {
		id := fmt.Sprintf("a%d", i)
		rt.Register(id, slow)
		entries[i] = TickEntry{AgentID: id, Observation: testObservation(id, 1)}
	}

	rt.ProcessTick(context.Background(), 1, entries)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(workers), "concurrent decides bounded by max workers")
}

func TestAgentEpisodeResetOnTickRegression(t *testing.T) {
	dir := t.TempDir()
	traces, err := trace.NewStore(dir)
	require.NoError(t, err)

	var starts, ends int
	b := &hookBehavior{
		decide: func(obs *schemas.Observation) *schemas.Decision {
			return schemas.Idle("")
		},
		onStart: func() { starts++ },
		onEnd:   func(bool, map[string]float64) { ends++ },
	}

	rt := New(Options{Traces: traces})
	agent := rt.Register("a1", b)

	obs := testObservation("a1", 10)
	obs.NearbyResources = []schemas.ResourceInfo{
		{Name: "berry", Type: "berry", Position: schemas.Vec3{1, 0, 0}, Distance: 1},
	}
	_, _, err = rt.DecideOne(context.Background(), obs)
	require.NoError(t, err)
	firstEpisode := traces.Episode("a1")
	_, found := agent.WorldMap.Object("berry")
	require.True(t, found)

	// Tick goes backwards: episode boundary.
	_, _, err = rt.DecideOne(context.Background(), testObservation("a1", 2))
	require.NoError(t, err)

	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.NotEqual(t, firstEpisode, traces.Episode("a1"), "trace episode rotates")
	_, found = agent.WorldMap.Object("berry")
	assert.False(t, found, "world map cleared on episode start")
}

func TestAgentDecideProducesTrace(t *testing.T) {
	traces, err := trace.NewStore(t.TempDir())
	require.NoError(t, err)
	rt := New(Options{Traces: traces})
	rt.Register("a1", echoBehavior())

	_, finished, err := rt.DecideOne(context.Background(), testObservation("a1", 4))
	require.NoError(t, err)
	require.NotNil(t, finished)
	require.GreaterOrEqual(t, len(finished.Steps), 2)
	assert.Equal(t, "observation", finished.Steps[0].Name)
	assert.Equal(t, "decision", finished.Steps[len(finished.Steps)-1].Name)

	// The flushed trace is on disk as the last decision.
	last := traces.LastDecision("a1")
	require.NotNil(t, last)
	assert.Equal(t, finished.TraceID, last.TraceID)
}

// hookBehavior exposes closures for the lifecycle hooks.
type hookBehavior struct {
	decide  func(*schemas.Observation) *schemas.Decision
	onStart func()
	onEnd   func(bool, map[string]float64)
}

func (h *hookBehavior) Decide(_ context.Context, obs *schemas.Observation, _ []schemas.ToolSchema) (*schemas.Decision, error) {
	return h.decide(obs), nil
}
func (h *hookBehavior) OnEpisodeStart() {
	if h.onStart != nil {
		h.onStart()
	}
}
func (h *hookBehavior) OnEpisodeEnd(success bool, metrics map[string]float64) {
	if h.onEnd != nil {
		h.onEnd(success, metrics)
	}
}
func (h *hookBehavior) OnToolResult(string, map[string]any) {}
