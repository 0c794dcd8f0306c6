package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAI-compatible backend. Local servers
// (vLLM, llama.cpp server, LM Studio) expose the same chat-completions
// surface, so BaseURL points this client at any of them.
type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// OpenAIBackend implements Backend on the OpenAI chat-completions API.
type OpenAIBackend struct {
	client   openai.Client
	cfg      OpenAIConfig
	unloaded atomic.Bool
}

// NewOpenAIBackend creates a backend for the configured endpoint.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model identifier is required")
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIBackend{client: openai.NewClient(opts...), cfg: cfg}, nil
}

// Generate produces text for a prompt.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerationResult, error) {
	return b.call(ctx, prompt, nil, opts)
}

// GenerateWithTools produces text or a native tool call.
func (b *OpenAIBackend) GenerateWithTools(ctx context.Context, prompt string, tools []ToolDef, opts GenerateOptions) (*GenerationResult, error) {
	return b.call(ctx, prompt, tools, opts)
}

func (b *OpenAIBackend) call(ctx context.Context, prompt string, tools []ToolDef, opts GenerateOptions) (*GenerationResult, error) {
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

	messages := []openai.ChatCompletionMessageParamUnion{}
	if b.cfg.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(b.cfg.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(b.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	}
	for _, tool := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters),
			},
		})
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return &GenerationResult{FinishReason: FinishError, Metadata: map[string]any{}}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return &GenerationResult{FinishReason: FinishError, Metadata: map[string]any{}}, fmt.Errorf("no choices returned")
	}

	choice := completion.Choices[0]
	result := &GenerationResult{
		Text:         choice.Message.Content,
		TokensUsed:   int(completion.Usage.TotalTokens),
		FinishReason: normalizeFinishReason(string(choice.FinishReason)),
		Metadata:     map[string]any{"model": completion.Model},
	}

	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		var args map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			args = map[string]any{}
		}
		result.Metadata["tool_call"] = map[string]any{
			"name":      call.Function.Name,
			"arguments": args,
		}
	}
	return result, nil
}

// IsAvailable reports whether the backend can serve requests.
func (b *OpenAIBackend) IsAvailable() bool {
	return !b.unloaded.Load()
}

// Unload marks the backend unusable. The HTTP client itself holds no
// model state to free.
func (b *OpenAIBackend) Unload() error {
	b.unloaded.Store(true)
	return nil
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "stop", "tool_calls", "function_call", "end_turn":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	case "":
		return FinishStop
	default:
		return reason
	}
}
