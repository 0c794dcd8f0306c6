package schemas

import (
	"encoding/json"
	"fmt"
	"math"
)

// EntityInfo describes a visible entity.
type EntityInfo struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position Vec3           `json:"position"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ResourceInfo describes a nearby resource.
type ResourceInfo struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Position Vec3    `json:"position"`
	Distance float64 `json:"distance"`
}

// HazardInfo describes a nearby hazard.
type HazardInfo struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Position Vec3    `json:"position"`
	Distance float64 `json:"distance"`
	Damage   float64 `json:"damage"`
}

// StationInfo describes a nearby station (crafting table, depot, ...).
type StationInfo struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Position Vec3    `json:"position"`
	Distance float64 `json:"distance"`
}

// ItemInfo describes an inventory item.
type ItemInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// ExploreTarget is a potential exploration target.
type ExploreTarget struct {
	Direction string  `json:"direction"`
	Distance  float64 `json:"distance"`
	Position  Vec3    `json:"position"`
}

// ExplorationInfo tracks what share of the world the agent has seen and
// where the unexplored frontiers are. The runtime passes it through to
// behaviors verbatim; frontier semantics belong to the host.
type ExplorationInfo struct {
	ExplorationPercentage float64            `json:"exploration_percentage"`
	TotalCells            int                `json:"total_cells"`
	SeenCells             int                `json:"seen_cells"`
	FrontiersByDirection  map[string]float64 `json:"frontiers_by_direction"`
	ExploreTargets        []ExploreTarget    `json:"explore_targets"`
}

// Observation is the immutable perception snapshot one agent receives from
// the host each tick.
type Observation struct {
	AgentID         string             `json:"agent_id"`
	Tick            int                `json:"tick"`
	Position        Vec3               `json:"position"`
	Rotation        *Vec3              `json:"rotation"`
	Velocity        *Vec3              `json:"velocity"`
	VisibleEntities []EntityInfo       `json:"visible_entities"`
	NearbyResources []ResourceInfo     `json:"nearby_resources"`
	NearbyHazards   []HazardInfo       `json:"nearby_hazards"`
	NearbyStations  []StationInfo      `json:"nearby_stations"`
	Inventory       []ItemInfo         `json:"inventory"`
	Health          float64            `json:"health"`
	Energy          float64            `json:"energy"`
	Exploration     *ExplorationInfo   `json:"exploration"`
	ScenarioName    string             `json:"scenario_name"`
	Objective       *Objective         `json:"objective"`
	CurrentProgress map[string]float64 `json:"current_progress"`
	Custom          map[string]any     `json:"custom"`
}

// observationWire mirrors Observation but keeps optional scalars as pointers
// so absent fields get their documented defaults instead of zero values.
type observationWire struct {
	AgentID         *string            `json:"agent_id"`
	Tick            *int               `json:"tick"`
	Position        *Vec3              `json:"position"`
	Rotation        *Vec3              `json:"rotation"`
	Velocity        *Vec3              `json:"velocity"`
	VisibleEntities []EntityInfo       `json:"visible_entities"`
	NearbyResources []ResourceInfo     `json:"nearby_resources"`
	NearbyHazards   []HazardInfo       `json:"nearby_hazards"`
	NearbyStations  []StationInfo      `json:"nearby_stations"`
	Inventory       []itemWire         `json:"inventory"`
	Health          *float64           `json:"health"`
	Energy          *float64           `json:"energy"`
	Exploration     *ExplorationInfo   `json:"exploration"`
	ScenarioName    string             `json:"scenario_name"`
	Objective       *Objective         `json:"objective"`
	CurrentProgress map[string]float64 `json:"current_progress"`
	Custom          map[string]any     `json:"custom"`
}

type itemWire struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
}

// ParseObservation decodes and validates an observation from its wire form.
func ParseObservation(data []byte) (*Observation, error) {
	var w observationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, NewValidationError("observation", fmt.Sprintf("invalid JSON: %v", err))
	}
	if w.AgentID == nil || *w.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	if w.Tick == nil {
		return nil, NewValidationError("tick", "required")
	}
	if *w.Tick < 0 {
		return nil, NewValidationError("tick", "must be non-negative")
	}
	if w.Position == nil {
		return nil, NewValidationError("position", "required")
	}

	obs := &Observation{
		AgentID:         *w.AgentID,
		Tick:            *w.Tick,
		Position:        *w.Position,
		Rotation:        w.Rotation,
		Velocity:        w.Velocity,
		VisibleEntities: w.VisibleEntities,
		NearbyResources: w.NearbyResources,
		NearbyHazards:   w.NearbyHazards,
		NearbyStations:  w.NearbyStations,
		Health:          100.0,
		Energy:          100.0,
		Exploration:     w.Exploration,
		ScenarioName:    w.ScenarioName,
		Objective:       w.Objective,
		CurrentProgress: w.CurrentProgress,
		Custom:          w.Custom,
	}
	if w.Health != nil {
		obs.Health = *w.Health
	}
	if w.Energy != nil {
		obs.Energy = *w.Energy
	}
	for _, it := range w.Inventory {
		qty := 1
		if it.Quantity != nil {
			qty = *it.Quantity
		}
		obs.Inventory = append(obs.Inventory, ItemInfo{ID: it.ID, Name: it.Name, Quantity: qty})
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	return obs, nil
}

// Validate checks the observation invariants: finite positions and
// non-negative distances.
func (o *Observation) Validate() error {
	if !o.Position.IsFinite() {
		return NewValidationError("position", "components must be finite")
	}
	if o.Rotation != nil && !o.Rotation.IsFinite() {
		return NewValidationError("rotation", "components must be finite")
	}
	if o.Velocity != nil && !o.Velocity.IsFinite() {
		return NewValidationError("velocity", "components must be finite")
	}
	if math.IsNaN(o.Health) || math.IsInf(o.Health, 0) {
		return NewValidationError("health", "must be finite")
	}
	if math.IsNaN(o.Energy) || math.IsInf(o.Energy, 0) {
		return NewValidationError("energy", "must be finite")
	}
	for _, e := range o.VisibleEntities {
		if e.Distance < 0 {
			return NewValidationError("visible_entities", fmt.Sprintf("entity %q has negative distance", e.ID))
		}
		if !e.Position.IsFinite() {
			return NewValidationError("visible_entities", fmt.Sprintf("entity %q has non-finite position", e.ID))
		}
	}
	for _, r := range o.NearbyResources {
		if r.Distance < 0 {
			return NewValidationError("nearby_resources", fmt.Sprintf("resource %q has negative distance", r.Name))
		}
		if !r.Position.IsFinite() {
			return NewValidationError("nearby_resources", fmt.Sprintf("resource %q has non-finite position", r.Name))
		}
	}
	for _, h := range o.NearbyHazards {
		if h.Distance < 0 {
			return NewValidationError("nearby_hazards", fmt.Sprintf("hazard %q has negative distance", h.Name))
		}
		if !h.Position.IsFinite() {
			return NewValidationError("nearby_hazards", fmt.Sprintf("hazard %q has non-finite position", h.Name))
		}
	}
	for _, s := range o.NearbyStations {
		if s.Distance < 0 {
			return NewValidationError("nearby_stations", fmt.Sprintf("station %q has negative distance", s.Name))
		}
	}
	return nil
}

// ResourceNames returns the names of all nearby resources.
func (o *Observation) ResourceNames() []string {
	names := make([]string, 0, len(o.NearbyResources))
	for _, r := range o.NearbyResources {
		names = append(names, r.Name)
	}
	return names
}

// HazardNames returns the names of all nearby hazards.
func (o *Observation) HazardNames() []string {
	names := make([]string, 0, len(o.NearbyHazards))
	for _, h := range o.NearbyHazards {
		names = append(names, h.Name)
	}
	return names
}
