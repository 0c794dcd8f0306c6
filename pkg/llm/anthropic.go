package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Claude Messages backend.
type AnthropicConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// AnthropicBackend implements Backend on the Anthropic Messages API.
type AnthropicBackend struct {
	messages *sdk.MessageService
	cfg      AnthropicConfig
	unloaded atomic.Bool
}

// NewAnthropicBackend creates a Claude-backed generation backend.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model identifier is required")
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicBackend{messages: &client.Messages, cfg: cfg}, nil
}

// Generate produces text for a prompt.
func (b *AnthropicBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerationResult, error) {
	return b.call(ctx, prompt, nil, opts)
}

// GenerateWithTools produces text or a native tool call.
func (b *AnthropicBackend) GenerateWithTools(ctx context.Context, prompt string, tools []ToolDef, opts GenerateOptions) (*GenerationResult, error) {
	return b.call(ctx, prompt, tools, opts)
}

func (b *AnthropicBackend) call(ctx context.Context, prompt string, tools []ToolDef, opts GenerateOptions) (*GenerationResult, error) {
	if b.unloaded.Load() {
		return nil, fmt.Errorf("backend unloaded")
	}

	temperature := b.cfg.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := b.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(b.cfg.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: sdk.Float(temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if b.cfg.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: b.cfg.SystemPrompt}}
	}
	for _, tool := range tools {
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: tool.Parameters}, tool.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(tool.Description)
		}
		params.Tools = append(params.Tools, u)
	}

	msg, err := b.messages.New(ctx, params)
	if err != nil {
		return &GenerationResult{FinishReason: FinishError, Metadata: map[string]any{}}, fmt.Errorf("anthropic messages.new: %w", err)
	}

	result := &GenerationResult{
		TokensUsed:   int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		FinishReason: translateStopReason(msg.StopReason),
		Metadata:     map[string]any{"model": string(msg.Model)},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					args = map[string]any{}
				}
			}
			result.Metadata["tool_call"] = map[string]any{
				"name":      block.Name,
				"arguments": args,
			}
		}
	}
	return result, nil
}

// IsAvailable reports whether the backend can serve requests.
func (b *AnthropicBackend) IsAvailable() bool {
	return !b.unloaded.Load()
}

// Unload marks the backend unusable.
func (b *AnthropicBackend) Unload() error {
	b.unloaded.Store(true)
	return nil
}

func translateStopReason(reason sdk.StopReason) string {
	switch reason {
	case sdk.StopReasonEndTurn, sdk.StopReasonToolUse, sdk.StopReasonStopSequence:
		return FinishStop
	case sdk.StopReasonMaxTokens:
		return FinishLength
	default:
		return FinishStop
	}
}
