package memory

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/justinternetai/arena-runtime/pkg/schemas"
)

// Spatial memory defaults.
const (
	DefaultCellSize       = 10.0
	DefaultStaleThreshold = 100
	DefaultMaxExperiences = 50
)

type gridCell struct {
	x, y, z int
}

// QueryResult is one hit from a spatial or semantic query.
type QueryResult struct {
	Object    *schemas.WorldObject
	Distance  float64
	Score     float64
	Staleness int
}

// NearQuery narrows a proximity query.
type NearQuery struct {
	// ObjectType filters by object type when non-empty.
	ObjectType string
	// IncludeCollected also returns collected/destroyed objects.
	IncludeCollected bool
	// ExcludeStale drops objects unseen for longer than the stale
	// threshold. Proximity queries include stale objects by default.
	ExcludeStale bool
}

// SpatialMemory tracks world objects by position so an agent can remember
// where things are even when they leave line of sight. Objects are indexed
// by a uniform 3D grid for proximity queries; a bounded experience log and
// an optional semantic index ride along.
//
// A SpatialMemory belongs to exactly one behavior and needs no locking; the
// pipeline serializes decide calls per agent.
type SpatialMemory struct {
	objects map[string]*schemas.WorldObject
	grid    map[gridCell]map[string]struct{}

	cellSize       float64
	staleThreshold int
	currentTick    int
	prevTick       int
	sawTick        bool

	experiences    []*schemas.ExperienceEvent
	maxExperiences int

	semantic            *SemanticMemory[*schemas.WorldObject]
	similarityThreshold float64
}

// SpatialOption configures a SpatialMemory.
type SpatialOption func(*SpatialMemory)

// WithStaleThreshold overrides the staleness threshold in ticks.
func WithStaleThreshold(ticks int) SpatialOption {
	return func(m *SpatialMemory) { m.staleThreshold = ticks }
}

// WithMaxExperiences overrides the experience log capacity.
func WithMaxExperiences(n int) SpatialOption {
	return func(m *SpatialMemory) { m.maxExperiences = n }
}

// WithSemanticIndex attaches a semantic index built on the given embedding
// provider. Queries below the similarity threshold are dropped.
func WithSemanticIndex(provider EmbeddingProvider, threshold float64) SpatialOption {
	return func(m *SpatialMemory) {
		m.semantic = NewSemanticMemory(
			provider,
			worldObjectToText,
			worldObjectToMetadata,
			worldObjectFromMetadata,
		)
		m.similarityThreshold = threshold
	}
}

// NewSpatialMemory creates an empty spatial memory.
func NewSpatialMemory(opts ...SpatialOption) *SpatialMemory {
	m := &SpatialMemory{
		objects:        make(map[string]*schemas.WorldObject),
		grid:           make(map[gridCell]map[string]struct{}),
		cellSize:       DefaultCellSize,
		staleThreshold: DefaultStaleThreshold,
		maxExperiences: DefaultMaxExperiences,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// worldObjectToText converts a world object to a short searchable sentence.
func worldObjectToText(obj *schemas.WorldObject) string {
	parts := []string{
		fmt.Sprintf("%s named %s", obj.ObjectType, obj.Name),
		fmt.Sprintf("type %s", obj.Subtype),
		fmt.Sprintf("at position %v", obj.Position),
	}
	if obj.Damage > 0 {
		parts = append(parts, fmt.Sprintf("deals %g damage", obj.Damage))
	}
	if obj.Status != schemas.StatusActive {
		parts = append(parts, fmt.Sprintf("status %s", obj.Status))
	}
	return strings.Join(parts, ", ")
}

func worldObjectToMetadata(obj *schemas.WorldObject) map[string]any {
	return map[string]any{
		"name":           obj.Name,
		"object_type":    obj.ObjectType,
		"subtype":        obj.Subtype,
		"position":       []float64{obj.Position[0], obj.Position[1], obj.Position[2]},
		"last_seen_tick": obj.LastSeenTick,
		"status":         obj.Status,
		"damage":         obj.Damage,
	}
}

func worldObjectFromMetadata(meta map[string]any) *schemas.WorldObject {
	obj := &schemas.WorldObject{
		Name:       "unknown",
		ObjectType: schemas.StatusUnknown,
		Subtype:    schemas.StatusUnknown,
		Status:     schemas.StatusActive,
	}
	if v, ok := meta["name"].(string); ok {
		obj.Name = v
	}
	if v, ok := meta["object_type"].(string); ok {
		obj.ObjectType = v
	}
	if v, ok := meta["subtype"].(string); ok {
		obj.Subtype = v
	}
	if v, ok := meta["status"].(string); ok {
		obj.Status = v
	}
	switch v := meta["last_seen_tick"].(type) {
	case int:
		obj.LastSeenTick = v
	case float64:
		obj.LastSeenTick = int(v)
	}
	if v, ok := meta["damage"].(float64); ok {
		obj.Damage = v
	}
	if pos, ok := meta["position"].([]float64); ok && len(pos) == 3 {
		obj.Position = schemas.Vec3{pos[0], pos[1], pos[2]}
	} else if pos, ok := meta["position"].([]any); ok && len(pos) == 3 {
		for i, c := range pos {
			if f, ok := c.(float64); ok {
				obj.Position[i] = f
			}
		}
	}
	return obj
}

func (m *SpatialMemory) posToGrid(pos schemas.Vec3) gridCell {
	return gridCell{
		x: int(math.Floor(pos[0] / m.cellSize)),
		y: int(math.Floor(pos[1] / m.cellSize)),
		z: int(math.Floor(pos[2] / m.cellSize)),
	}
}

func (m *SpatialMemory) addToGrid(obj *schemas.WorldObject) {
	cell := m.posToGrid(obj.Position)
	names := m.grid[cell]
	if names == nil {
		names = make(map[string]struct{})
		m.grid[cell] = names
	}
	names[obj.Name] = struct{}{}
}

func (m *SpatialMemory) removeFromGrid(obj *schemas.WorldObject) {
	cell := m.posToGrid(obj.Position)
	if names, ok := m.grid[cell]; ok {
		delete(names, obj.Name)
		if len(names) == 0 {
			delete(m.grid, cell)
		}
	}
}

// LastTick returns the most recently observed tick. The second return is
// false before the first observation (and again after Clear).
func (m *SpatialMemory) LastTick() (int, bool) {
	return m.prevTick, m.sawTick
}

// UpdateFromObservation folds the observation's resources, hazards, and
// entities into the map, refreshing positions and last-seen ticks. It
// returns true when the observed tick went backwards, the implicit signal
// that a new episode has started.
func (m *SpatialMemory) UpdateFromObservation(obs *schemas.Observation) bool {
	episodeReset := m.sawTick && obs.Tick < m.prevTick
	m.prevTick = obs.Tick
	m.sawTick = true
	m.currentTick = obs.Tick

	for _, r := range obs.NearbyResources {
		m.storeOrUpdate(schemas.WorldObjectFromResource(r, obs.Tick))
	}
	for _, h := range obs.NearbyHazards {
		m.storeOrUpdate(schemas.WorldObjectFromHazard(h, obs.Tick))
	}
	for _, e := range obs.VisibleEntities {
		m.storeOrUpdate(schemas.WorldObjectFromEntity(e, obs.Tick))
	}

	slog.Debug("Updated spatial memory",
		"tick", obs.Tick,
		"total_objects", len(m.objects))
	return episodeReset
}

func (m *SpatialMemory) storeOrUpdate(obj *schemas.WorldObject) {
	if existing, ok := m.objects[obj.Name]; ok {
		m.removeFromGrid(existing)
		// Terminal status survives re-observation.
		if existing.Terminal() {
			obj.Status = existing.Status
		}
	}
	m.objects[obj.Name] = obj
	m.addToGrid(obj)

	if m.semantic != nil {
		if err := m.semantic.Store(obj); err != nil {
			slog.Warn("Failed to index object semantically", "name", obj.Name, "error", err)
		}
	}
}

// MarkCollected marks an object as collected. Returns false when unknown.
func (m *SpatialMemory) MarkCollected(name string) bool {
	return m.setStatus(name, schemas.StatusCollected)
}

// MarkDestroyed marks an object as destroyed. Returns false when unknown.
func (m *SpatialMemory) MarkDestroyed(name string) bool {
	return m.setStatus(name, schemas.StatusDestroyed)
}

func (m *SpatialMemory) setStatus(name, status string) bool {
	obj, ok := m.objects[name]
	if !ok {
		return false
	}
	obj.Status = status
	return true
}

// QueryNearPosition returns remembered objects within radius of center,
// sorted ascending by distance. Candidates come from the grid cells within
// int(radius/cellSize)+1 cells along each axis.
func (m *SpatialMemory) QueryNearPosition(center schemas.Vec3, radius float64, q NearQuery) []QueryResult {
	candidates := make(map[string]struct{})
	cells := int(radius/m.cellSize) + 1
	centerCell := m.posToGrid(center)
	for dx := -cells; dx <= cells; dx++ {
		for dy := -cells; dy <= cells; dy++ {
			for dz := -cells; dz <= cells; dz++ {
				cell := gridCell{centerCell.x + dx, centerCell.y + dy, centerCell.z + dz}
				for name := range m.grid[cell] {
					candidates[name] = struct{}{}
				}
			}
		}
	}

	var results []QueryResult
	for name := range candidates {
		obj, ok := m.objects[name]
		if !ok {
			continue
		}
		if q.ObjectType != "" && obj.ObjectType != q.ObjectType {
			continue
		}
		if !q.IncludeCollected && obj.Terminal() {
			continue
		}
		dist := obj.DistanceTo(center)
		if dist > radius {
			continue
		}
		staleness := m.currentTick - obj.LastSeenTick
		if q.ExcludeStale && staleness > m.staleThreshold {
			continue
		}
		results = append(results, QueryResult{
			Object:    obj,
			Distance:  dist,
			Score:     1.0,
			Staleness: staleness,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	return results
}

// QueryByType returns all objects of the given type via a linear scan. The
// grid only accelerates proximity; object counts stay moderate.
func (m *SpatialMemory) QueryByType(objectType, subtype string, includeCollected bool) []*schemas.WorldObject {
	var results []*schemas.WorldObject
	for _, obj := range m.objects {
		if obj.ObjectType != objectType {
			continue
		}
		if subtype != "" && obj.Subtype != subtype {
			continue
		}
		if !includeCollected && obj.Terminal() {
			continue
		}
		results = append(results, obj)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// QuerySemantic searches remembered objects by natural-language text. It
// needs an attached semantic index; without one it returns nothing.
func (m *SpatialMemory) QuerySemantic(query string, limit int, includeCollected bool) []QueryResult {
	if m.semantic == nil {
		slog.Warn("Semantic search not available")
		return nil
	}
	// Over-fetch so status filtering doesn't starve the result set.
	raw, err := m.semantic.Query(query, limit*2, m.similarityThreshold)
	if err != nil {
		slog.Warn("Semantic query failed", "error", err)
		return nil
	}

	var results []QueryResult
	for _, hit := range raw {
		name, _ := hit.Metadata["name"].(string)
		obj, ok := m.objects[name]
		if !ok {
			continue
		}
		if !includeCollected && obj.Terminal() {
			continue
		}
		results = append(results, QueryResult{
			Object:    obj,
			Distance:  0,
			Score:     hit.Score,
			Staleness: m.currentTick - obj.LastSeenTick,
		})
		if len(results) == limit {
			break
		}
	}
	return results
}

// Object returns a remembered object by name.
func (m *SpatialMemory) Object(name string) (*schemas.WorldObject, bool) {
	obj, ok := m.objects[name]
	return obj, ok
}

// AllObjects returns all remembered objects, optionally including terminal
// ones.
func (m *SpatialMemory) AllObjects(includeCollected bool) []*schemas.WorldObject {
	out := make([]*schemas.WorldObject, 0, len(m.objects))
	for _, obj := range m.objects {
		if !includeCollected && obj.Terminal() {
			continue
		}
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resources returns all known resources.
func (m *SpatialMemory) Resources(includeCollected bool) []*schemas.WorldObject {
	return m.QueryByType(schemas.ObjectTypeResource, "", includeCollected)
}

// Hazards returns all known hazards, including destroyed ones.
func (m *SpatialMemory) Hazards() []*schemas.WorldObject {
	return m.QueryByType(schemas.ObjectTypeHazard, "", true)
}

// RecordExperience appends an event to the bounded experience log. A
// collision additionally materializes an obstacle at the collision position
// so later proximity queries can route around it.
func (m *SpatialMemory) RecordExperience(event *schemas.ExperienceEvent) {
	m.experiences = append(m.experiences, event)
	if len(m.experiences) > m.maxExperiences {
		m.experiences = m.experiences[len(m.experiences)-m.maxExperiences:]
	}

	if event.EventType == schemas.EventCollision && event.ObjectName != "" {
		m.storeOrUpdate(&schemas.WorldObject{
			Name:         event.ObjectName,
			ObjectType:   schemas.ObjectTypeObstacle,
			Subtype:      schemas.EventCollision,
			Position:     event.Position,
			LastSeenTick: event.Tick,
			Status:       schemas.StatusActive,
		})
	}

	slog.Debug("Recorded experience",
		"event_type", event.EventType,
		"tick", event.Tick,
		"total", len(m.experiences))
}

// RecentExperiences returns up to limit experiences, newest last.
func (m *SpatialMemory) RecentExperiences(limit int) []*schemas.ExperienceEvent {
	if limit <= 0 || limit > len(m.experiences) {
		limit = len(m.experiences)
	}
	out := make([]*schemas.ExperienceEvent, limit)
	copy(out, m.experiences[len(m.experiences)-limit:])
	return out
}

// Clear empties objects, grid, experiences, and the attached semantic
// index, and forgets the tick history so the next observation starts a
// fresh episode baseline.
func (m *SpatialMemory) Clear() {
	m.objects = make(map[string]*schemas.WorldObject)
	m.grid = make(map[gridCell]map[string]struct{})
	m.experiences = nil
	m.prevTick = 0
	m.sawTick = false
	if m.semantic != nil {
		m.semantic.Clear()
	}
	slog.Debug("Cleared spatial memory")
}

// Len returns the number of remembered objects.
func (m *SpatialMemory) Len() int { return len(m.objects) }

// Summarize renders a short text description of the world map for prompts.
func (m *SpatialMemory) Summarize() string {
	resources := m.Resources(false)
	hazards := m.Hazards()

	var b strings.Builder
	fmt.Fprintf(&b, "World Map: %d objects known", len(m.objects))

	if len(resources) > 0 {
		shown := resources
		if len(shown) > 5 {
			shown = shown[:5]
		}
		parts := make([]string, 0, len(shown))
		for _, r := range shown {
			parts = append(parts, fmt.Sprintf("%s (%s) at %v", r.Name, r.Subtype, r.Position))
		}
		fmt.Fprintf(&b, "\nResources: %s", strings.Join(parts, ", "))
		if extra := len(resources) - len(shown); extra > 0 {
			fmt.Fprintf(&b, " (+%d more)", extra)
		}
	}
	if len(hazards) > 0 {
		shown := hazards
		if len(shown) > 3 {
			shown = shown[:3]
		}
		parts := make([]string, 0, len(shown))
		for _, h := range shown {
			parts = append(parts, fmt.Sprintf("%s (%s, dmg:%g) at %v", h.Name, h.Subtype, h.Damage, h.Position))
		}
		fmt.Fprintf(&b, "\nHazards: %s", strings.Join(parts, ", "))
		if extra := len(hazards) - len(shown); extra > 0 {
			fmt.Fprintf(&b, " (+%d more)", extra)
		}
	}

	stale := 0
	for _, obj := range m.objects {
		if m.currentTick-obj.LastSeenTick > m.staleThreshold {
			stale++
		}
	}
	if stale > 0 {
		fmt.Fprintf(&b, "\nStale objects (not seen in >%d ticks): %d", m.staleThreshold, stale)
	}
	return b.String()
}

// Dump returns the full spatial memory state for inspection.
func (m *SpatialMemory) Dump() map[string]any {
	all := m.AllObjects(true)
	active, collected := 0, 0
	for _, obj := range all {
		switch obj.Status {
		case schemas.StatusActive:
			active++
		case schemas.StatusCollected:
			collected++
		}
	}
	experiences := make([]*schemas.ExperienceEvent, len(m.experiences))
	copy(experiences, m.experiences)
	return map[string]any{
		"type": "SpatialMemory",
		"stats": map[string]any{
			"total_objects":     len(all),
			"active_objects":    active,
			"collected_objects": collected,
			"experience_count":  len(m.experiences),
			"current_tick":      m.currentTick,
		},
		"objects": all,
		"objects_by_type": map[string]any{
			"resources": m.Resources(true),
			"hazards":   m.Hazards(),
			"obstacles": m.QueryByType(schemas.ObjectTypeObstacle, "", true),
		},
		"experiences": experiences,
		"grid_stats": map[string]any{
			"cell_size":      m.cellSize,
			"occupied_cells": len(m.grid),
		},
	}
}
