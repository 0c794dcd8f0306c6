// Package llm defines the backend boundary for text generation. The runtime
// treats backends as opaque services: anything that can turn a prompt (and
// optionally a tool list) into text satisfies the contract: hosted APIs,
// vLLM, llama.cpp servers, or test fakes.
package llm

import "context"

// Finish reasons reported by backends.
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishError  = "error"
)

// GenerationResult is the outcome of one backend call.
type GenerationResult struct {
	Text         string
	TokensUsed   int
	FinishReason string
	// Metadata may carry a native "tool_call" ({name, arguments}) or a
	// pre-parsed "parsed_tool_call" which the decision parser consumes
	// before attempting text extraction.
	Metadata map[string]any
}

// ToolDef is the backend-facing tool description.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// GenerateOptions carry per-call overrides. Zero values defer to backend
// defaults.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Backend is the minimal text-generation contract.
type Backend interface {
	// Generate produces text for a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerationResult, error)

	// GenerateWithTools produces text or a tool call given a tool list.
	GenerateWithTools(ctx context.Context, prompt string, tools []ToolDef, opts GenerateOptions) (*GenerationResult, error)

	// IsAvailable reports whether the backend is loaded and ready.
	IsAvailable() bool

	// Unload releases backend resources.
	Unload() error
}
