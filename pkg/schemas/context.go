package schemas

// SimpleContext is the reduced view of an observation handed to simplified
// behaviors: just position, what's nearby, and what's carried.
type SimpleContext struct {
	Position        Vec3
	NearbyResources []ResourceInfo
	NearbyHazards   []HazardInfo
	Inventory       []string
	Goal            string
	Tick            int
}

// NewSimpleContext builds a SimpleContext from a full observation.
func NewSimpleContext(obs *Observation, goal string) *SimpleContext {
	inventory := make([]string, 0, len(obs.Inventory))
	for _, item := range obs.Inventory {
		inventory = append(inventory, item.Name)
	}
	return &SimpleContext{
		Position:        obs.Position,
		NearbyResources: obs.NearbyResources,
		NearbyHazards:   obs.NearbyHazards,
		Inventory:       inventory,
		Goal:            goal,
		Tick:            obs.Tick,
	}
}
