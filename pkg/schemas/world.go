package schemas

// Object types tracked by spatial memory.
const (
	ObjectTypeResource = "resource"
	ObjectTypeHazard   = "hazard"
	ObjectTypeEntity   = "entity"
	ObjectTypeObstacle = "obstacle"
)

// World object status values. Once an object reaches a terminal status
// (collected or destroyed) re-observations preserve it.
const (
	StatusActive    = "active"
	StatusCollected = "collected"
	StatusDestroyed = "destroyed"
	StatusUnknown   = "unknown"
)

// WorldObject is a remembered entity in an agent's spatial memory. It keeps
// the last-known position and status of resources, hazards, and entities even
// when they leave the agent's line of sight.
type WorldObject struct {
	Name         string         `json:"name"`
	ObjectType   string         `json:"object_type"`
	Subtype      string         `json:"subtype"`
	Position     Vec3           `json:"position"`
	LastSeenTick int            `json:"last_seen_tick"`
	Status       string         `json:"status"`
	Damage       float64        `json:"damage"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// DistanceTo returns the Euclidean distance from the object to pos.
func (o *WorldObject) DistanceTo(pos Vec3) float64 {
	return o.Position.DistanceTo(pos)
}

// Terminal reports whether the object's status is collected or destroyed.
func (o *WorldObject) Terminal() bool {
	return o.Status == StatusCollected || o.Status == StatusDestroyed
}

// WorldObjectFromResource builds a world object from an observed resource.
func WorldObjectFromResource(r ResourceInfo, tick int) *WorldObject {
	return &WorldObject{
		Name:         r.Name,
		ObjectType:   ObjectTypeResource,
		Subtype:      r.Type,
		Position:     r.Position,
		LastSeenTick: tick,
		Status:       StatusActive,
	}
}

// WorldObjectFromHazard builds a world object from an observed hazard.
func WorldObjectFromHazard(h HazardInfo, tick int) *WorldObject {
	return &WorldObject{
		Name:         h.Name,
		ObjectType:   ObjectTypeHazard,
		Subtype:      h.Type,
		Position:     h.Position,
		LastSeenTick: tick,
		Status:       StatusActive,
		Damage:       h.Damage,
	}
}

// WorldObjectFromEntity builds a world object from an observed entity.
func WorldObjectFromEntity(e EntityInfo, tick int) *WorldObject {
	return &WorldObject{
		Name:         e.ID,
		ObjectType:   ObjectTypeEntity,
		Subtype:      e.Type,
		Position:     e.Position,
		LastSeenTick: tick,
		Status:       StatusActive,
		Metadata:     e.Metadata,
	}
}

// Experience event types.
const (
	EventCollision = "collision"
	EventDamage    = "damage"
	EventTrapped   = "trapped"
	EventCollected = "collected"
)

// ExperienceEvent records a significant episodic event (collision, damage
// taken, ...) so behaviors can learn from past mistakes.
type ExperienceEvent struct {
	Tick        int            `json:"tick"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	Position    Vec3           `json:"position"`
	ObjectName  string         `json:"object_name,omitempty"`
	DamageTaken float64        `json:"damage_taken"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
