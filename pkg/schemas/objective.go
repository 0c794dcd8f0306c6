package schemas

import "encoding/json"

// MetricDefinition describes one success metric of an objective.
type MetricDefinition struct {
	Target        float64 `json:"target"`
	Weight        float64 `json:"weight"`
	LowerIsBetter bool    `json:"lower_is_better"`
	Required      bool    `json:"required"`
}

// UnmarshalJSON applies the default weight of 1.0 when the field is absent.
func (m *MetricDefinition) UnmarshalJSON(data []byte) error {
	type alias MetricDefinition
	aux := alias{Weight: 1.0}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = MetricDefinition(aux)
	return nil
}

// Objective is the scenario-defined goal passed to the agent via
// observations. The runtime treats it as advisory: behaviors may fold it into
// their prompts or ignore it entirely.
type Objective struct {
	Description    string                      `json:"description"`
	SuccessMetrics map[string]MetricDefinition `json:"success_metrics"`
	TimeLimit      int                         `json:"time_limit"`
}
