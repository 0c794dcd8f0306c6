package masking

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
)

// Service applies masking patterns to strings and JSON-shaped values.
type Service struct {
	patterns map[string]*CompiledPattern
}

// NewService creates a masking service with the built-in pattern set plus
// any custom patterns. Invalid custom patterns are logged and skipped.
// Custom patterns are keyed as "custom:{index}" to avoid collisions.
func NewService(custom ...PatternConfig) *Service {
	s := &Service{patterns: compileBuiltinPatterns()}
	for i, pc := range custom {
		name := fmt.Sprintf("custom:%d", i)
		compiled, err := regexp.Compile(pc.Pattern)
		if err != nil {
			slog.Error("Failed to compile custom masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pc.Replacement,
			Description: pc.Description,
		}
	}
	return s
}

// MaskString applies every pattern to the input.
func (s *Service) MaskString(data string) string {
	for _, name := range s.patternNames() {
		p := s.patterns[name]
		data = p.Regex.ReplaceAllString(data, p.Replacement)
	}
	return data
}

// Mask applies masking to a JSON-shaped value: strings are masked, maps and
// slices recurse, everything else passes through unchanged.
func (s *Service) Mask(data any) any {
	switch v := data.(type) {
	case string:
		return s.MaskString(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.Mask(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = s.Mask(item)
		}
		return out
	default:
		return v
	}
}

// patternNames returns pattern names in a stable order so masking output is
// deterministic.
func (s *Service) patternNames() []string {
	names := make([]string, 0, len(s.patterns))
	for name := range s.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
