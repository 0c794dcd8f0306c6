// Package masking scrubs secrets from data before it is persisted. Trace
// files capture full prompts and model output, which can embed API keys or
// tokens that passed through configuration or tool results; the masking
// service replaces them before anything reaches disk.
package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// PatternConfig declares one maskable pattern.
type PatternConfig struct {
	Pattern     string
	Replacement string
	Description string
}

// builtinPatterns cover the common credential shapes that show up in
// prompts and tool results.
var builtinPatterns = map[string]PatternConfig{
	"api_key": {
		Pattern:     `(?i)\b(api[_-]?key|apikey)["'\s:=]+[\w\-\.]{16,}`,
		Replacement: "***MASKED_API_KEY***",
		Description: "Generic API key assignments",
	},
	"openai_key": {
		Pattern:     `\bsk-[A-Za-z0-9\-_]{20,}`,
		Replacement: "***MASKED_API_KEY***",
		Description: "OpenAI/Anthropic style secret keys",
	},
	"bearer_token": {
		Pattern:     `(?i)\bbearer\s+[A-Za-z0-9\-_\.=]{16,}`,
		Replacement: "***MASKED_TOKEN***",
		Description: "Bearer tokens in headers or prompt text",
	},
	"password": {
		Pattern:     `(?i)\b(password|passwd|pwd)["'\s:=]+\S{6,}`,
		Replacement: "***MASKED_PASSWORD***",
		Description: "Password assignments",
	},
	"basic_auth_url": {
		Pattern:     `(?i)\b[a-z][a-z0-9+\-.]*://[^/\s:@]+:[^/\s:@]+@`,
		Replacement: "***MASKED_URL_CREDENTIALS***@",
		Description: "Credentials embedded in URLs",
	},
}

// compileBuiltinPatterns compiles the built-in regex patterns. Invalid
// patterns are logged and skipped.
func compileBuiltinPatterns() map[string]*CompiledPattern {
	patterns := make(map[string]*CompiledPattern, len(builtinPatterns))
	for name, pattern := range builtinPatterns {
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
	return patterns
}
