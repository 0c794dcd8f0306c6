package debug

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// Store is hybrid trace storage: an in-memory ring buffer of recently
// completed traces plus an optional bridge to the persistent trace store.
// The ring always works; without a trace store the Store is memory-only and
// episode reads return nothing.
type Store struct {
	mu       sync.Mutex
	buffer   []*trace.ReasoningTrace
	capacity int

	traces *trace.Store // nil in memory-only mode
}

// NewStore creates a debug store. traces may be nil for memory-only
// operation; capacity <= 0 uses the default ring size.
func NewStore(traces *trace.Store, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Store{capacity: capacity, traces: traces}
}

// Record appends a completed trace to the ring buffer. Traces flushed
// through the trace store are already on disk, so no second write happens
// here.
func (s *Store) Record(t *trace.ReasoningTrace) {
	if t == nil {
		return
	}
	s.mu.Lock()
	s.buffer = append(s.buffer, t)
	if len(s.buffer) > s.capacity {
		s.buffer = s.buffer[len(s.buffer)-s.capacity:]
	}
	s.mu.Unlock()
}

// RecordAndPersist rings the trace and best-effort writes it to disk, for
// traces assembled outside the trace store's start/end flow.
func (s *Store) RecordAndPersist(t *trace.ReasoningTrace) {
	s.Record(t)
	if s.traces == nil || t == nil {
		return
	}
	if err := s.traces.WriteTrace(t); err != nil {
		slog.Warn("Failed to persist debug trace", "trace_id", t.TraceID, "error", err)
	}
}

// RecentTraces returns the tail of the ring buffer, filtered by agent and
// tick range. A nil bound leaves that side open.
func (s *Store) RecentTraces(limit int, agentID string, tickStart, tickEnd *int) []*trace.ReasoningTrace {
	s.mu.Lock()
	items := make([]*trace.ReasoningTrace, len(s.buffer))
	copy(items, s.buffer)
	s.mu.Unlock()

	var filtered []*trace.ReasoningTrace
	for _, t := range items {
		if agentID != "" && t.AgentID != agentID {
			continue
		}
		if tickStart != nil && t.Tick < *tickStart {
			continue
		}
		if tickEnd != nil && t.Tick > *tickEnd {
			continue
		}
		filtered = append(filtered, t)
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Tick < filtered[j].Tick })
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// EpisodeTraces reads an episode from persistent storage.
func (s *Store) EpisodeTraces(agentID, episodeID string) []*trace.ReasoningTrace {
	if s.traces == nil {
		return nil
	}
	return s.traces.EpisodeTraces(agentID, episodeID)
}

// Agents returns agents present in the ring buffer or on disk, sorted.
func (s *Store) Agents() []string {
	set := make(map[string]struct{})
	s.mu.Lock()
	for _, t := range s.buffer {
		set[t.AgentID] = struct{}{}
	}
	s.mu.Unlock()
	if s.traces != nil {
		for _, a := range s.traces.ListAgents() {
			set[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Episodes lists an agent's episodes from persistent storage.
func (s *Store) Episodes(agentID string) []string {
	if s.traces == nil {
		return nil
	}
	return s.traces.ListEpisodes(agentID)
}

// Clear drops the in-memory ring buffer. On-disk traces are untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	s.buffer = nil
	s.mu.Unlock()
}
