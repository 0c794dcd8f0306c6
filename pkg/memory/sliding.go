// Package memory provides the per-agent memory systems: a sliding window of
// recent observations, a grid-indexed spatial map of remembered world
// objects, and an optional semantic index for natural-language recall.
package memory

import (
	"fmt"
	"strings"

	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

// DefaultWindowCapacity is the default number of observations retained.
const DefaultWindowCapacity = 10

// SlidingWindow is a fixed-capacity FIFO of recent observations. Oldest
// observations are discarded when the capacity is exceeded.
//
// A window belongs to exactly one behavior and is not safe for concurrent
// use; the pipeline serializes decide calls per agent.
type SlidingWindow struct {
	capacity     int
	observations []*schemas.Observation
}

// NewSlidingWindow creates a window with the given capacity (>= 1).
func NewSlidingWindow(capacity int) (*SlidingWindow, error) {
	if capacity < 1 {
		return nil, schemas.NewValidationError("capacity", "must be at least 1")
	}
	return &SlidingWindow{capacity: capacity}, nil
}

// Capacity returns the configured capacity.
func (w *SlidingWindow) Capacity() int { return w.capacity }

// Store appends an observation, evicting the oldest when over capacity.
func (w *SlidingWindow) Store(obs *schemas.Observation) {
	w.observations = append(w.observations, obs)
	if len(w.observations) > w.capacity {
		w.observations = w.observations[len(w.observations)-w.capacity:]
	}
}

// Retrieve returns up to limit observations, most recent first. A limit <= 0
// returns everything in reverse chronological order.
func (w *SlidingWindow) Retrieve(limit int) []*schemas.Observation {
	n := len(w.observations)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*schemas.Observation, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, w.observations[i])
	}
	return out
}

// Summarize formats a human-readable block describing the stored
// observations, most recent first.
func (w *SlidingWindow) Summarize() string {
	if len(w.observations) == 0 {
		return "No observations in memory."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Memory (last %d observations):", len(w.observations))
	for i := len(w.observations) - 1; i >= 0; i-- {
		obs := w.observations[i]
		fmt.Fprintf(&b, "\n\n[Tick %d]", obs.Tick)
		fmt.Fprintf(&b, "\n  Position: %v", obs.Position)
		if len(obs.NearbyResources) > 0 {
			fmt.Fprintf(&b, "\n  Nearby resources: %d", len(obs.NearbyResources))
		}
		if len(obs.NearbyHazards) > 0 {
			fmt.Fprintf(&b, "\n  Nearby hazards: %d", len(obs.NearbyHazards))
		}
		fmt.Fprintf(&b, "\n  Health: %.0f, Energy: %.0f", obs.Health, obs.Energy)
	}
	return b.String()
}

// Clear discards all stored observations.
func (w *SlidingWindow) Clear() {
	w.observations = nil
}

// Len returns the number of stored observations.
func (w *SlidingWindow) Len() int { return len(w.observations) }

// Dump returns the full window state for inspection.
func (w *SlidingWindow) Dump() map[string]any {
	obs := make([]*schemas.Observation, len(w.observations))
	copy(obs, w.observations)
	return map[string]any{
		"type": "SlidingWindow",
		"stats": map[string]any{
			"observation_count": len(w.observations),
			"capacity":          w.capacity,
		},
		"observations": obs,
	}
}
