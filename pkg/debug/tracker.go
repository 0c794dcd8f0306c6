// Package debug provides the operator-facing inspection surface: per-agent
// visibility diffing with a bounded history, and a hybrid trace store
// bridging the in-memory ring buffer to on-disk trace files.
package debug

import (
	"sort"
	"sync"
	"time"

	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

// DefaultRingCapacity bounds the in-memory histories.
const DefaultRingCapacity = 1000

// ObservationEntry is one tracked observation with its visibility diff
// against the previous observation for the same agent.
type ObservationEntry struct {
	Tick             int            `json:"tick"`
	AgentID          string         `json:"agent_id"`
	Timestamp        string         `json:"timestamp"`
	Position         schemas.Vec3   `json:"position"`
	VisibleResources []string       `json:"visible_resources"`
	VisibleHazards   []string       `json:"visible_hazards"`
	GainedResources  []string       `json:"gained_resources"`
	LostResources    []string       `json:"lost_resources"`
	GainedHazards    []string       `json:"gained_hazards"`
	LostHazards      []string       `json:"lost_hazards"`
	RawObservation   map[string]any `json:"raw_observation"`
}

// HasChanges reports whether any visibility changed versus the previous
// observation.
func (e *ObservationEntry) HasChanges() bool {
	return len(e.GainedResources) > 0 || len(e.LostResources) > 0 ||
		len(e.GainedHazards) > 0 || len(e.LostHazards) > 0
}

type visibleSets struct {
	resources map[string]struct{}
	hazards   map[string]struct{}
}

// Tracker records observations and computes per-agent visibility diffs.
// A fixed-capacity ring keeps memory bounded; a mutex guards both the ring
// and the per-agent last-visible sets.
type Tracker struct {
	mu          sync.Mutex
	entries     []*ObservationEntry
	capacity    int
	lastVisible map[string]visibleSets
}

// NewTracker creates a tracker. capacity <= 0 uses the default.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Tracker{
		capacity:    capacity,
		lastVisible: make(map[string]visibleSets),
	}
}

// Track records an observation and returns its visibility-diff entry. The
// first observation for an agent reports everything as gained.
func (t *Tracker) Track(obs *schemas.Observation, raw map[string]any) *ObservationEntry {
	current := visibleSets{
		resources: nameSet(obs.ResourceNames()),
		hazards:   nameSet(obs.HazardNames()),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastVisible[obs.AgentID]
	if !ok {
		last = visibleSets{resources: map[string]struct{}{}, hazards: map[string]struct{}{}}
	}
	entry := &ObservationEntry{
		Tick:             obs.Tick,
		AgentID:          obs.AgentID,
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		Position:         obs.Position,
		VisibleResources: sortedKeys(current.resources),
		VisibleHazards:   sortedKeys(current.hazards),
		GainedResources:  sortedDiff(current.resources, last.resources),
		LostResources:    sortedDiff(last.resources, current.resources),
		GainedHazards:    sortedDiff(current.hazards, last.hazards),
		LostHazards:      sortedDiff(last.hazards, current.hazards),
		RawObservation:   raw,
	}
	t.lastVisible[obs.AgentID] = current

	t.entries = append(t.entries, entry)
	if len(t.entries) > t.capacity {
		t.entries = t.entries[len(t.entries)-t.capacity:]
	}
	return entry
}

// Recent returns the most recent entries, optionally filtered by agent.
func (t *Tracker) Recent(limit int, agentID string) []*ObservationEntry {
	return t.filter(limit, agentID, func(*ObservationEntry) bool { return true })
}

// Changes returns only entries with a non-empty visibility diff.
func (t *Tracker) Changes(limit int, agentID string) []*ObservationEntry {
	return t.filter(limit, agentID, func(e *ObservationEntry) bool { return e.HasChanges() })
}

func (t *Tracker) filter(limit int, agentID string, keep func(*ObservationEntry) bool) []*ObservationEntry {
	t.mu.Lock()
	items := make([]*ObservationEntry, len(t.entries))
	copy(items, t.entries)
	t.mu.Unlock()

	var filtered []*ObservationEntry
	for _, e := range items {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		if keep(e) {
			filtered = append(filtered, e)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// Agents returns the agents the tracker has seen.
func (t *Tracker) Agents() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeysOf(t.lastVisible)
}

// Clear drops the history and the last-visible sets.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.lastVisible = make(map[string]visibleSets)
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeysOf(m map[string]visibleSets) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedDiff(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}
