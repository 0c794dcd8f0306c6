package schemas

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnparseable is returned when no strategy can extract a decision from
// the response text.
var ErrUnparseable = errors.New("no valid decision found in response")

// Regex patterns for response parsing (compiled once).
var (
	thinkingPattern       = regexp.MustCompile(`(?is)THINKING:\s*(.*?)(?:ACTION:|$)`)
	actionPattern         = regexp.MustCompile(`(?is)ACTION:\s*(\{.*)`)
	fencedBlockPattern    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")
	toolObjectPattern     = regexp.MustCompile(`\{[^{}]*"tool"[^{}]*\}`)
	toolFragmentPattern   = regexp.MustCompile(`(?s)("tool"\s*:.*)`)
	toolFieldPattern      = regexp.MustCompile(`"tool"\s*:\s*"([^"]+)"`)
	paramsObjectPattern   = regexp.MustCompile(`"params"\s*:\s*(\{[^{}]*\})`)
	targetPositionPattern = regexp.MustCompile(`"target_position"\s*:\s*\[([-\d.,\s]+)\]`)
	targetStringPattern   = regexp.MustCompile(`"target"\s*:\s*"([^"]+)"`)
)

// ParseDecisionResponse extracts a Decision from free-form LLM output.
//
// The parser is intentionally forgiving, because LLM output is unreliable.
// It tries a fixed sequence of strategies and stops at the first success:
//
//  1. THINKING: ... ACTION: {json} chain-of-thought (the THINKING block
//     becomes the reasoning)
//  2. the whole text as JSON
//  3. a fenced code block (optionally tagged json)
//  4. the shortest {..."tool"...} substring
//  5. any balanced {...} region
//  6. truncation recovery from a cut-off fragment
//
// Field aliases are accepted: tool/action/tool_name/name, params/parameters/
// arguments, reasoning/thought/explanation. A parse with no tool at all
// yields "idle".
func ParseDecisionResponse(text string) (*Decision, error) {
	var cotReasoning string
	if m := thinkingPattern.FindStringSubmatch(text); m != nil {
		cotReasoning = strings.TrimSpace(m[1])
	}

	// Strategy 1: JSON after an ACTION: marker, balanced-brace extracted.
	if m := actionPattern.FindStringSubmatch(text); m != nil {
		if raw, ok := firstBalancedObject(m[1]); ok {
			if d, ok := decisionFromJSON(raw, cotReasoning); ok {
				return d, nil
			}
		}
	}

	// Strategy 2: the entire text is JSON.
	trimmed := strings.TrimSpace(text)
	if d, ok := decisionFromJSON(trimmed, cotReasoning); ok {
		return d, nil
	}

	// Strategy 3: fenced code block.
	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		if d, ok := decisionFromJSON(strings.TrimSpace(m[1]), cotReasoning); ok {
			return d, nil
		}
	}

	// Strategy 4: shortest substring that looks like {..."tool"...}.
	if m := toolObjectPattern.FindString(text); m != "" {
		if d, ok := decisionFromJSON(m, cotReasoning); ok {
			return d, nil
		}
	}

	// Strategy 5: any balanced {...} region. A region that never closes
	// (truncated output) ends the scan; the recovery pass below handles it.
	rest := text
	for {
		start := strings.Index(rest, "{")
		if start < 0 {
			break
		}
		raw, ok := firstBalancedObject(rest[start:])
		if !ok {
			break
		}
		if d, parsed := decisionFromJSON(raw, cotReasoning); parsed {
			return d, nil
		}
		rest = rest[start+len(raw):]
	}

	// Strategy 6: truncation recovery. When the model hits its token limit
	// the JSON may be cut off mid-way; salvage tool and params from the
	// fragment.
	if d, ok := recoverTruncated(text, cotReasoning); ok {
		return d, nil
	}

	return nil, ErrUnparseable
}

// decisionFromJSON builds a Decision from a JSON object string, honoring the
// field aliases. Returns false when the string is not a JSON object.
func decisionFromJSON(raw string, cotReasoning string) (*Decision, bool) {
	if !gjson.Valid(raw) {
		return nil, false
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, false
	}

	tool := firstString(root, "tool", "action", "tool_name", "name")
	if tool == "" {
		slog.Warn("No tool specified in LLM response, defaulting to idle")
		tool = ToolIdle
	}

	params := map[string]any{}
	for _, key := range []string{"params", "parameters", "arguments"} {
		if v := root.Get(key); v.IsObject() {
			if m, ok := v.Value().(map[string]any); ok {
				params = m
			}
			break
		}
	}

	// Chain-of-thought reasoning wins over any reasoning field in the JSON.
	reasoning := cotReasoning
	if reasoning == "" {
		reasoning = firstString(root, "reasoning", "thought", "explanation")
	}

	return NewDecision(tool, params, reasoning), true
}

func firstString(root gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := root.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// firstBalancedObject returns the first balanced {...} region of s, which
// must start at or after the first '{'.
func firstBalancedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// recoverTruncated salvages a partial decision from a cut-off JSON fragment:
// a quoted tool name, plus a complete params object or an embedded
// target_position array when present.
func recoverTruncated(text string, cotReasoning string) (*Decision, bool) {
	fragment := text
	if m := actionPattern.FindStringSubmatch(text); m != nil {
		fragment = m[1]
	} else if m := toolFragmentPattern.FindStringSubmatch(text); m != nil {
		fragment = m[1]
	}

	toolMatch := toolFieldPattern.FindStringSubmatch(fragment)
	if toolMatch == nil {
		return nil, false
	}
	tool := toolMatch[1]
	params := map[string]any{}

	if m := paramsObjectPattern.FindStringSubmatch(fragment); m != nil && gjson.Valid(m[1]) {
		if v, ok := gjson.Parse(m[1]).Value().(map[string]any); ok {
			params = v
		}
	}
	if len(params) == 0 {
		if m := targetPositionPattern.FindStringSubmatch(fragment); m != nil {
			coords := make([]any, 0, 3)
			valid := true
			for _, part := range strings.Split(m[1], ",") {
				f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
				if err != nil {
					valid = false
					break
				}
				coords = append(coords, f)
			}
			if valid && len(coords) > 0 {
				params["target_position"] = coords
			}
		}
		if m := targetStringPattern.FindStringSubmatch(fragment); m != nil {
			params["target"] = m[1]
		}
	}

	slog.Warn("Recovered truncated LLM response", "tool", tool, "params", params)
	return NewDecision(tool, params, cotReasoning), true
}
