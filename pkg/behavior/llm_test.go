package behavior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinternetai/arena-runtime/pkg/llm"
	"github.com/justinternetai/arena-runtime/pkg/memory"
	"github.com/justinternetai/arena-runtime/pkg/schemas"
	"github.com/justinternetai/arena-runtime/pkg/trace"
)

// fakeBackend returns canned results and records the prompts it saw.
type fakeBackend struct {
	result    *llm.GenerationResult
	err       error
	available bool
	prompts   []string
	tools     [][]llm.ToolDef
}

func (f *fakeBackend) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (*llm.GenerationResult, error) {
	f.prompts = append(f.prompts, prompt)
	return f.result, f.err
}

func (f *fakeBackend) GenerateWithTools(_ context.Context, prompt string, tools []llm.ToolDef, _ llm.GenerateOptions) (*llm.GenerationResult, error) {
	f.prompts = append(f.prompts, prompt)
	f.tools = append(f.tools, tools)
	return f.result, f.err
}

func (f *fakeBackend) IsAvailable() bool { return f.available }
func (f *fakeBackend) Unload() error     { return nil }

func textResult(text string) *llm.GenerationResult {
	return &llm.GenerationResult{
		Text:         text,
		TokensUsed:   42,
		FinishReason: llm.FinishStop,
		Metadata:     map[string]any{},
	}
}

func llmObservation(tick int) *schemas.Observation {
	return &schemas.Observation{
		AgentID:  "a1",
		Tick:     tick,
		Position: schemas.Vec3{0, 0, 0},
		Health:   90,
		Energy:   80,
		NearbyResources: []schemas.ResourceInfo{
			{Name: "berry_001", Type: "berry", Position: schemas.Vec3{2, 0, 0}, Distance: 2},
		},
		NearbyHazards: []schemas.HazardInfo{
			{Name: "fire_001", Type: "fire", Position: schemas.Vec3{5, 0, 0}, Distance: 5, Damage: 10},
		},
		Inventory: []schemas.ItemInfo{{ID: "i1", Name: "apple", Quantity: 2}},
	}
}

func moveToolDefs() []schemas.ToolSchema {
	return []schemas.ToolSchema{{
		Name:        "move_to",
		Description: "Move toward a target position.",
		Parameters:  map[string]any{"type": "object"},
	}}
}

func TestLLMBehaviorParsesTextDecision(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		result:    textResult(`{"tool": "move_to", "params": {"target_position": [2, 0, 0]}, "reasoning": "berry"}`),
	}
	b, err := NewLLM(backend, nil, LLMConfig{SystemPrompt: "forage"})
	require.NoError(t, err)

	d, err := b.Decide(context.Background(), llmObservation(1), moveToolDefs())
	require.NoError(t, err)
	assert.Equal(t, "move_to", d.Tool)
	assert.Equal(t, "berry", d.Reasoning)

	require.Len(t, backend.tools, 1)
	assert.Equal(t, "move_to", backend.tools[0][0].Name)
}

func TestLLMBehaviorNativeToolCallWins(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		result: &llm.GenerationResult{
			Text:         "Moving now",
			FinishReason: llm.FinishStop,
			Metadata: map[string]any{
				"tool_call": map[string]any{
					"name":      "pickup",
					"arguments": map[string]any{"item_id": "berry_001"},
				},
			},
		},
	}
	b, err := NewLLM(backend, nil, LLMConfig{})
	require.NoError(t, err)

	d, err := b.Decide(context.Background(), llmObservation(1), nil)
	require.NoError(t, err)
	assert.Equal(t, "pickup", d.Tool)
	assert.Equal(t, "berry_001", d.Params["item_id"])
	assert.Equal(t, "Moving now", d.Reasoning)
}

func TestLLMBehaviorBackendErrorDegradesToIdle(t *testing.T) {
	backend := &fakeBackend{available: true, err: assert.AnError}
	b, err := NewLLM(backend, nil, LLMConfig{})
	require.NoError(t, err)

	d, err := b.Decide(context.Background(), llmObservation(1), nil)
	require.NoError(t, err, "backend failures are contained, not propagated")
	assert.Equal(t, schemas.ToolIdle, d.Tool)
	assert.Contains(t, d.Reasoning, "Error")
}

func TestLLMBehaviorUnparseableDegradesToIdle(t *testing.T) {
	backend := &fakeBackend{available: true, result: textResult("no structured content here")}
	b, err := NewLLM(backend, nil, LLMConfig{})
	require.NoError(t, err)

	d, err := b.Decide(context.Background(), llmObservation(1), nil)
	require.NoError(t, err)
	assert.Equal(t, schemas.ToolIdle, d.Tool)
	assert.Equal(t, "Failed to parse LLM response", d.Reasoning)
}

func TestLLMBehaviorRejectsUnavailableBackend(t *testing.T) {
	_, err := NewLLM(&fakeBackend{available: false}, nil, LLMConfig{})
	assert.Error(t, err)
}

func TestLLMBehaviorPromptContents(t *testing.T) {
	backend := &fakeBackend{available: true, result: textResult(`{"tool": "idle"}`)}
	worldMap := memory.NewSpatialMemory()
	worldMap.RecordExperience(&schemas.ExperienceEvent{
		Tick: 1, EventType: schemas.EventDamage, Description: "burned by fire", DamageTaken: 10,
	})
	b, err := NewLLM(backend, worldMap, LLMConfig{})
	require.NoError(t, err)

	// Two ticks so the second prompt carries history.
	_, err = b.Decide(context.Background(), llmObservation(1), nil)
	require.NoError(t, err)
	_, err = b.Decide(context.Background(), llmObservation(2), nil)
	require.NoError(t, err)

	require.Len(t, backend.prompts, 2)
	prompt := backend.prompts[1]
	assert.Contains(t, prompt, "Recent observations:")
	assert.Contains(t, prompt, "Current observation:")
	assert.Contains(t, prompt, "berry_001")
	assert.Contains(t, prompt, "fire_001")
	assert.Contains(t, prompt, "apple (x2)")
	assert.Contains(t, prompt, "burned by fire")
	assert.Contains(t, prompt, "Choose an action")
}

func TestLLMBehaviorLogsTraceSteps(t *testing.T) {
	backend := &fakeBackend{available: true, result: textResult(`{"tool": "idle"}`)}
	b, err := NewLLM(backend, nil, LLMConfig{})
	require.NoError(t, err)

	tr := trace.NewReasoningTrace("a1", 1, "ep")
	ctx := trace.NewContext(context.Background(), tr)
	_, err = b.Decide(ctx, llmObservation(1), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(tr.Steps))
	for _, s := range tr.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"prompt", "llm_response", "parse"}, names)
}

func TestLLMBehaviorEpisodeHooks(t *testing.T) {
	backend := &fakeBackend{available: true, result: textResult(`{"tool": "idle"}`)}
	b, err := NewLLM(backend, nil, LLMConfig{WindowCapacity: 5})
	require.NoError(t, err)

	_, err = b.Decide(context.Background(), llmObservation(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Window().Len())

	b.OnEpisodeStart()
	assert.Equal(t, 0, b.Window().Len())
}

func TestParseGenerationResultPreParsedToolCall(t *testing.T) {
	d := ParseGenerationResult(&llm.GenerationResult{
		Metadata: map[string]any{
			"parsed_tool_call": map[string]any{
				"tool":      "drop",
				"params":    map[string]any{"item_name": "rock"},
				"reasoning": "too heavy",
			},
		},
	})
	assert.Equal(t, "drop", d.Tool)
	assert.Equal(t, "rock", d.Params["item_name"])
	assert.Equal(t, "too heavy", d.Reasoning)
}
