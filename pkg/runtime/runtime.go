package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/justinternetai/arena-runtime/pkg/behavior"
	"github.com/justinternetai/arena-runtime/pkg/memory"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// DefaultMaxWorkers bounds concurrent decide calls per tick.
const DefaultMaxWorkers = 4

// Options configure a Runtime.
type Options struct {
	// MaxWorkers bounds concurrent decide calls (default 4).
	MaxWorkers int
	// Traces enables reasoning-trace capture when non-nil.
	Traces *trace.Store
	// Tools is the registry of tool schemas advertised to behaviors.
	Tools *schemas.ToolRegistry
	// SpatialOptions are applied to each registered agent's world map.
	SpatialOptions []memory.SpatialOption
}

// Runtime routes observations to registered behaviors and fans decide calls
// out to a bounded worker pool.
type Runtime struct {
	mu     sync.RWMutex
	agents map[string]*Agent

	maxWorkers  int
	traces      *trace.Store
	tools       *schemas.ToolRegistry
	spatialOpts []memory.SpatialOption
}

// New creates a runtime.
func New(opts Options) *Runtime {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	slog.Info("Initialized runtime", "max_workers", opts.MaxWorkers, "tracing", opts.Traces != nil)
	if opts.Tools == nil {
		opts.Tools = schemas.NewToolRegistry()
	}
	return &Runtime{
		agents:      make(map[string]*Agent),
		maxWorkers:  opts.MaxWorkers,
		traces:      opts.Traces,
		tools:       opts.Tools,
		spatialOpts: opts.SpatialOptions,
	}
}

// Register binds a behavior to an agent id, replacing any prior binding.
// The agent gets a fresh world map.
func (r *Runtime) Register(agentID string, b behavior.Behavior) *Agent {
	agent := &Agent{
		ID:       agentID,
		Behavior: b,
		WorldMap: memory.NewSpatialMemory(r.spatialOpts...),
		traces:   r.traces,
	}
	r.mu.Lock()
	if _, exists := r.agents[agentID]; exists {
		slog.Warn("Agent already registered, replacing", "agent_id", agentID)
	}
	r.agents[agentID] = agent
	r.mu.Unlock()
	slog.Info("Registered agent", "agent_id", agentID)
	return agent
}

// Unregister removes an agent binding.
func (r *Runtime) Unregister(agentID string) {
	r.mu.Lock()
	delete(r.agents, agentID)
	r.mu.Unlock()
	slog.Info("Unregistered agent", "agent_id", agentID)
}

// Agent looks up a registered agent.
func (r *Runtime) Agent(agentID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	return a, ok
}

// AgentCount returns the number of registered agents.
func (r *Runtime) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// MaxWorkers returns the configured worker bound.
func (r *Runtime) MaxWorkers() int { return r.maxWorkers }

// Tools returns the runtime's tool registry.
func (r *Runtime) Tools() *schemas.ToolRegistry { return r.tools }

// DecideOne runs the decision frame for a single observation inline.
// Returns ErrNotFound when no behavior is registered for the agent.
func (r *Runtime) DecideOne(ctx context.Context, obs *schemas.Observation) (*schemas.Decision, *trace.ReasoningTrace, error) {
	agent, ok := r.Agent(obs.AgentID)
	if !ok {
		return nil, nil, fmt.Errorf("no behavior for agent %q: %w", obs.AgentID, schemas.ErrNotFound)
	}
	decision, finished := agent.Decide(ctx, obs, r.tools.List())
	return decision, finished, nil
}

// TickEntry is one agent's slot in a tick request: either a parsed
// observation or the parse error that replaced it.
type TickEntry struct {
	AgentID     string
	Observation *schemas.Observation
	Err         error
}

// TickResult is one agent's outcome for a tick, in request order.
type TickResult struct {
	AgentID  string
	Decision *schemas.Decision
	Trace    *trace.ReasoningTrace
}

// ProcessTick dispatches a tick's observations concurrently, bounded by the
// worker limit, and returns per-agent results in request order. Per-agent
// failures (parse error, missing behavior, decide failure) degrade to idle
// decisions; they never fail the whole tick.
func (r *Runtime) ProcessTick(ctx context.Context, tick int, entries []TickEntry) []TickResult {
	tools := r.tools.List()
	results := make([]TickResult, len(entries))
	sem := make(chan struct{}, r.maxWorkers)
	var wg sync.WaitGroup

	for i, entry := range entries {
		results[i].AgentID = entry.AgentID

		if entry.Err != nil {
			results[i].Decision = schemas.Idle(fmt.Sprintf("Error: %v", entry.Err))
			continue
		}
		agent, ok := r.Agent(entry.AgentID)
		if !ok {
			slog.Warn("No behavior registered for agent", "agent_id", entry.AgentID, "tick", tick)
			results[i].Decision = schemas.Idle(fmt.Sprintf("No behavior registered for agent %q", entry.AgentID))
			continue
		}

		wg.Add(1)
		go func(i int, agent *Agent, obs *schemas.Observation) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			decision, finished := agent.Decide(ctx, obs, tools)
			results[i].Decision = decision
			results[i].Trace = finished
		}(i, agent, entry.Observation)
	}
	wg.Wait()
	return results
}
