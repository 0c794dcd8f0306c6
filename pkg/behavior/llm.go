package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/justinternetai/arena-runtime/pkg/llm"
	"github.com/justinternetai/arena-runtime/pkg/memory"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are an autonomous agent in a simulation environment."

// LLMConfig configures an LLM behavior.
type LLMConfig struct {
	SystemPrompt   string
	WindowCapacity int
	Temperature    float64
	MaxTokens      int
}

// LLM is the advanced-tier behavior: it builds a prompt from the current
// observation, recent memory, world map, and experiences, invokes the
// backend with the tool list, and parses the response into a decision.
// Any failure degrades to an idle decision rather than an error.
type LLM struct {
	Base
	backend  llm.Backend
	window   *memory.SlidingWindow
	worldMap *memory.SpatialMemory

	systemPrompt string
	temperature  float64
	maxTokens    int
}

// NewLLM wraps a backend in the decision contract. The backend must be
// available.
func NewLLM(backend llm.Backend, worldMap *memory.SpatialMemory, cfg LLMConfig) (*LLM, error) {
	if !backend.IsAvailable() {
		return nil, fmt.Errorf("backend is not available")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = memory.DefaultWindowCapacity
	}
	window, err := memory.NewSlidingWindow(cfg.WindowCapacity)
	if err != nil {
		return nil, err
	}
	return &LLM{
		backend:      backend,
		window:       window,
		worldMap:     worldMap,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Window exposes the sliding-window memory.
func (b *LLM) Window() *memory.SlidingWindow { return b.window }

// SetWorldMap binds the framework-owned spatial memory used for prompt
// enrichment. runtime.Register does not call it; cmd/arenad binds each
// agent's world map after registering the agent.
func (b *LLM) SetWorldMap(m *memory.SpatialMemory) { b.worldMap = m }

// Decide prompts the backend and parses the result.
func (b *LLM) Decide(ctx context.Context, obs *schemas.Observation, tools []schemas.ToolSchema) (*schemas.Decision, error) {
	b.window.Store(obs)

	prompt := b.buildPrompt(obs, tools)
	trace.LogStep(ctx, "prompt", map[string]any{
		"system_prompt": b.systemPrompt,
		"text":          prompt,
		"length":        len(prompt),
	})

	toolDefs := make([]llm.ToolDef, 0, len(tools))
	for _, t := range tools {
		toolDefs = append(toolDefs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	start := time.Now()
	result, err := b.backend.GenerateWithTools(ctx, prompt, toolDefs, llm.GenerateOptions{
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		slog.Error("LLM generation failed", "agent_id", obs.AgentID, "error", err)
		return schemas.Idle(fmt.Sprintf("Error: %v", err)), nil
	}
	trace.LogStep(ctx, "llm_response", map[string]any{
		"text":          result.Text,
		"tokens_used":   result.TokensUsed,
		"finish_reason": result.FinishReason,
		"elapsed_ms":    float64(elapsed.Microseconds()) / 1000,
	})

	decision := ParseGenerationResult(result)
	trace.LogStep(ctx, "parse", map[string]any{
		"tool":      decision.Tool,
		"params":    decision.Params,
		"reasoning": decision.Reasoning,
	})

	slog.Info("Agent decided",
		"agent_id", obs.AgentID,
		"tool", decision.Tool,
		"llm_ms", elapsed.Milliseconds(),
		"tokens", result.TokensUsed)
	return decision, nil
}

// OnEpisodeStart clears the observation window.
func (b *LLM) OnEpisodeStart() {
	slog.Info("Episode started, clearing memory")
	b.window.Clear()
}

// OnEpisodeEnd logs the outcome.
func (b *LLM) OnEpisodeEnd(success bool, metrics map[string]float64) {
	slog.Info("Episode ended",
		"success", success,
		"observations_stored", b.window.Len(),
		"metrics", metrics)
}

// OnToolResult logs the host's execution result.
func (b *LLM) OnToolResult(tool string, result map[string]any) {
	slog.Debug("Tool executed", "tool", tool, "result", result)
}

// buildPrompt assembles system context, recent memory, experiences, world
// map, and the current observation into a single prompt.
func (b *LLM) buildPrompt(obs *schemas.Observation, tools []schemas.ToolSchema) string {
	var parts []string

	recent := b.window.Retrieve(5)
	// Skip the entry just stored for this tick; only history counts.
	if len(recent) > 1 {
		parts = append(parts, "Recent observations:")
		history := recent[1:]
		for i := len(history) - 1; i >= 0; i-- {
			o := history[i]
			parts = append(parts, fmt.Sprintf("  %d. Tick %d: Position %v", len(history)-i, o.Tick, o.Position))
			if len(o.NearbyResources) > 0 {
				parts = append(parts, fmt.Sprintf("     Resources nearby: %d", len(o.NearbyResources)))
			}
			if len(o.NearbyHazards) > 0 {
				parts = append(parts, fmt.Sprintf("     Hazards nearby: %d", len(o.NearbyHazards)))
			}
		}
		parts = append(parts, "")
	}

	if b.worldMap != nil {
		if experiences := b.worldMap.RecentExperiences(5); len(experiences) > 0 {
			parts = append(parts, "Recent experiences:")
			for _, e := range experiences {
				line := fmt.Sprintf("  - Tick %d: %s (%s)", e.Tick, e.Description, e.EventType)
				if e.DamageTaken > 0 {
					line += fmt.Sprintf(", took %.0f damage", e.DamageTaken)
				}
				parts = append(parts, line)
			}
			parts = append(parts, "")
		}
		if b.worldMap.Len() > 0 {
			parts = append(parts, b.worldMap.Summarize(), "")
		}
	}

	parts = append(parts, "Current observation:")
	parts = append(parts, fmt.Sprintf("  Tick: %d", obs.Tick))
	parts = append(parts, fmt.Sprintf("  Position: %v", obs.Position))
	parts = append(parts, fmt.Sprintf("  Health: %g", obs.Health))
	parts = append(parts, fmt.Sprintf("  Energy: %g", obs.Energy))

	if len(obs.NearbyResources) > 0 {
		parts = append(parts, fmt.Sprintf("  Nearby resources (%d):", len(obs.NearbyResources)))
		for _, r := range limitResources(obs.NearbyResources, 5) {
			parts = append(parts, fmt.Sprintf("    - %s (%s) at distance %.1f, position %v", r.Name, r.Type, r.Distance, r.Position))
		}
	}
	if len(obs.NearbyHazards) > 0 {
		parts = append(parts, fmt.Sprintf("  Nearby hazards (%d):", len(obs.NearbyHazards)))
		for _, h := range limitHazards(obs.NearbyHazards, 5) {
			parts = append(parts, fmt.Sprintf("    - %s (%s) at distance %.1f, damage %g, position %v", h.Name, h.Type, h.Distance, h.Damage, h.Position))
		}
	}
	if len(obs.Inventory) > 0 {
		parts = append(parts, fmt.Sprintf("  Inventory (%d items):", len(obs.Inventory)))
		for _, item := range obs.Inventory {
			parts = append(parts, fmt.Sprintf("    - %s (x%d)", item.Name, item.Quantity))
		}
	} else {
		parts = append(parts, "  Inventory: empty")
	}

	if obs.Objective != nil {
		parts = append(parts, fmt.Sprintf("  Objective: %s", obs.Objective.Description))
		for name, progress := range obs.CurrentProgress {
			if metric, ok := obs.Objective.SuccessMetrics[name]; ok {
				parts = append(parts, fmt.Sprintf("    %s: %g / %g", name, progress, metric.Target))
			}
		}
	}
	if obs.Exploration != nil {
		parts = append(parts, fmt.Sprintf("  Explored: %.0f%% of the world", obs.Exploration.ExplorationPercentage))
	}

	parts = append(parts, "", "Choose an action based on the observation above.")
	return strings.Join(parts, "\n")
}

func limitResources(rs []schemas.ResourceInfo, n int) []schemas.ResourceInfo {
	if len(rs) > n {
		return rs[:n]
	}
	return rs
}

func limitHazards(hs []schemas.HazardInfo, n int) []schemas.HazardInfo {
	if len(hs) > n {
		return hs[:n]
	}
	return hs
}

// ParseGenerationResult turns a backend result into a decision: a native
// tool call in metadata wins, then a pre-parsed tool call, then text
// parsing; an unparseable response degrades to idle.
func ParseGenerationResult(result *llm.GenerationResult) *schemas.Decision {
	if call, ok := result.Metadata["tool_call"].(map[string]any); ok {
		name, _ := call["name"].(string)
		if name != "" {
			args, _ := call["arguments"].(map[string]any)
			reasoning := result.Text
			if reasoning == "" {
				reasoning = "LLM tool call"
			}
			return schemas.NewDecision(name, args, reasoning)
		}
	}

	if parsed, ok := result.Metadata["parsed_tool_call"].(map[string]any); ok {
		tool, _ := parsed["tool"].(string)
		if tool == "" {
			tool = schemas.ToolIdle
		}
		params, _ := parsed["params"].(map[string]any)
		reasoning, _ := parsed["reasoning"].(string)
		if reasoning == "" {
			reasoning = "LLM decision"
		}
		return schemas.NewDecision(tool, params, reasoning)
	}

	decision, err := schemas.ParseDecisionResponse(result.Text)
	if err != nil {
		slog.Warn("Failed to parse LLM response", "error", err)
		return schemas.Idle("Failed to parse LLM response")
	}
	return decision
}
