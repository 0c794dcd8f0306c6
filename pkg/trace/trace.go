// Package trace records the step-by-step reasoning behind agent decisions.
// Each decision becomes a ReasoningTrace (observation, memory query, prompt,
// model output, parsed decision, ...), persisted one JSON line per trace in
// per-agent, per-episode files that operators can tail and replay.
package trace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Step is a single stage of a reasoning trace.
type Step struct {
	Name string `json:"name"`
	Data any    `json:"data"`
	// Timestamp is seconds since epoch; ElapsedMS is milliseconds since the
	// trace started.
	Timestamp float64 `json:"timestamp"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// ReasoningTrace is the complete record of one agent decision.
type ReasoningTrace struct {
	AgentID   string  `json:"agent_id"`
	Tick      int     `json:"tick"`
	EpisodeID string  `json:"episode_id"`
	TraceID   string  `json:"trace_id"`
	StartTime float64 `json:"start_time"`
	Steps     []Step  `json:"steps"`
}

// NewReasoningTrace creates an empty trace for one decision.
func NewReasoningTrace(agentID string, tick int, episodeID string) *ReasoningTrace {
	return &ReasoningTrace{
		AgentID:   agentID,
		Tick:      tick,
		EpisodeID: episodeID,
		TraceID:   uuid.NewString()[:8],
		StartTime: nowSeconds(),
	}
}

// AddStep appends a step, stamping it with the current time and the elapsed
// milliseconds since the trace started. Payloads are reduced to JSON-safe
// values so trace files always parse.
func (t *ReasoningTrace) AddStep(name string, data any) *Step {
	now := nowSeconds()
	t.Steps = append(t.Steps, Step{
		Name:      name,
		Data:      sanitizeData(data),
		Timestamp: now,
		ElapsedMS: (now - t.StartTime) * 1000,
	})
	return &t.Steps[len(t.Steps)-1]
}

// MarshalLine renders the trace as a single JSON line.
func (t *ReasoningTrace) MarshalLine() ([]byte, error) {
	return json.Marshal(t)
}

// ParseTrace decodes a trace from one JSONL line.
func ParseTrace(line []byte) (*ReasoningTrace, error) {
	var t ReasoningTrace
	if err := json.Unmarshal(line, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// dictConvertible lets payload types supply their own JSON-safe form.
type dictConvertible interface {
	Dump() map[string]any
}

// sanitizeData reduces arbitrary payloads to JSON-safe values: primitives
// and lists/maps pass through recursively, types with a Dump method use it,
// other values that encoding/json can marshal become their decoded JSON
// form, and everything else falls back to its string form. This rule is fixed so
// consumers of trace files never fail to parse a step.
func sanitizeData(data any) any {
	switch v := data.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeData(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = sanitizeData(item)
		}
		return out
	case dictConvertible:
		return sanitizeData(v.Dump())
	default:
		// Anything encoding/json can handle passes through unchanged.
		if raw, err := json.Marshal(v); err == nil {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err == nil {
				return decoded
			}
		}
		return fmt.Sprint(v)
	}
}

// FormatTree renders the trace as an ASCII tree for terminal display.
func (t *ReasoningTrace) FormatTree(maxDataLength int) string {
	if maxDataLength <= 0 {
		maxDataLength = 100
	}
	lines := []string{fmt.Sprintf("Decision Trace - Agent: %s, Tick: %d", t.AgentID, t.Tick)}
	for i, step := range t.Steps {
		last := i == len(t.Steps)-1
		childPrefix := "|   "
		if last {
			childPrefix = "    "
		}
		lines = append(lines, fmt.Sprintf("+-- %s (%.2fms)", step.Name, step.ElapsedMS))
		for _, dataLine := range strings.Split(formatDataPreview(step.Data, maxDataLength), "\n") {
			lines = append(lines, fmt.Sprintf("%s+-- %s", childPrefix, dataLine))
		}
	}
	return strings.Join(lines, "\n")
}

func formatDataPreview(data any, maxLength int) string {
	switch v := data.(type) {
	case nil:
		return "(none)"
	case string:
		if len(v) > maxLength {
			return fmt.Sprintf("[%d chars] %q...", len(v), v[:maxLength])
		}
		return fmt.Sprintf("%q", v)
	case map[string]any:
		var previews []string
		for _, key := range []string{"position", "tool", "params"} {
			if val, ok := v[key]; ok {
				previews = append(previews, fmt.Sprintf("%s: %v", key, val))
			}
		}
		if text, ok := v["text"].(string); ok {
			if len(text) > 50 {
				previews = append(previews, fmt.Sprintf("text: %q...", text[:50]))
			} else {
				previews = append(previews, fmt.Sprintf("text: %q", text))
			}
		}
		if tokens, ok := v["tokens_used"]; ok {
			previews = append(previews, fmt.Sprintf("tokens: %v", tokens))
		}
		if reasoning, ok := v["reasoning"].(string); ok && reasoning != "" {
			if len(reasoning) > 50 {
				previews = append(previews, fmt.Sprintf("reasoning: %q...", reasoning[:50]))
			} else {
				previews = append(previews, fmt.Sprintf("reasoning: %q", reasoning))
			}
		}
		if len(previews) > 0 {
			return strings.Join(previews, ", ")
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		if len(raw) > maxLength {
			return fmt.Sprintf("[%d chars] %s...", len(raw), raw[:maxLength])
		}
		return string(raw)
	case []any:
		return fmt.Sprintf("[%d items]", len(v))
	default:
		s := fmt.Sprint(v)
		if len(s) > maxLength {
			return s[:maxLength]
		}
		return s
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
