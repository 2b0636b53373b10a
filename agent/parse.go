package agent

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/m4xw311/rayo/tools"
	"github.com/oklog/ulid/v2"
)

// Parsed is the interpretation of one model response: FinalAnswer, ToolCall
// or ParseError.
type Parsed interface {
	isParsed()
}

// FinalAnswer is a response addressed to the operator.
type FinalAnswer struct {
	Text string
}

// ToolCall is a response requesting exactly one tool invocation.
type ToolCall struct {
	Call tools.Call
}

// ParseError is a response that tried to call a tool and failed.
type ParseError struct {
	Reason string
}

func (FinalAnswer) isParsed() {}
func (ToolCall) isParsed()    {}
func (ParseError) isParsed()  {}

var (
	jsonFence = regexp.MustCompile("(?s)```json[ \t]*\\r?\\n?(.*?)```")
	bareFence = regexp.MustCompile("(?s)```[ \t]*\\r?\\n(\\{.*?)```")
	toolKey   = regexp.MustCompile(`"tool"\s*:`)
)

// Parse interprets a model response. Plain prose is a final answer. A tool
// call is a single JSON object {"tool", "parameters", "reasoning"}, either
// the whole response or inside one fenced json block. Code blocks that do
// not mention a "tool" key are treated as part of a prose answer.
func Parse(text string, registry *tools.ToolRegistry) Parsed {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseError{Reason: "the response was empty"}
	}

	var candidates []string
	for _, m := range jsonFence.FindAllStringSubmatch(trimmed, -1) {
		if toolKey.MatchString(m[1]) {
			candidates = append(candidates, m[1])
		}
	}
	if len(candidates) == 0 {
		for _, m := range bareFence.FindAllStringSubmatch(trimmed, -1) {
			if toolKey.MatchString(m[1]) {
				candidates = append(candidates, m[1])
			}
		}
	}

	var raw string
	switch {
	case len(candidates) > 1:
		return ParseError{Reason: "the response exceeds one tool call; send exactly one tool call per message"}
	case len(candidates) == 1:
		raw = candidates[0]
	case bareAttempt(trimmed):
		raw = trimmed
	default:
		return FinalAnswer{Text: trimmed}
	}
	return decodeCall(raw, registry)
}

// bareAttempt reports whether an unfenced response is meant as a tool call:
// it opens like JSON and either names a "tool" field or is a whole JSON
// document. Prose such as a leading markdown link stays a final answer.
func bareAttempt(text string) bool {
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		return false
	}
	return toolKey.MatchString(text) || json.Valid([]byte(text))
}

func decodeCall(raw string, registry *tools.ToolRegistry) Parsed {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ParseError{Reason: "the tool call is not valid JSON: " + err.Error()}
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		if _, ok := extra.(map[string]any); ok {
			return ParseError{Reason: "the response exceeds one tool call; send exactly one tool call per message"}
		}
		return ParseError{Reason: "unexpected content after the tool call JSON object"}
	}

	var obj map[string]any
	switch v := v.(type) {
	case map[string]any:
		obj = v
	case []any:
		return ParseError{Reason: "the response exceeds one tool call; send a single JSON object, not an array"}
	default:
		return ParseError{Reason: "the tool call must be a JSON object"}
	}

	name, ok := obj["tool"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return ParseError{Reason: `the tool call needs a string "tool" field`}
	}
	var params map[string]any
	switch p := obj["parameters"].(type) {
	case nil:
		params = map[string]any{}
	case map[string]any:
		params = p
	default:
		return ParseError{Reason: `"parameters" must be a JSON object`}
	}
	reasoning, _ := obj["reasoning"].(string)

	action, err := registry.Build(name, params)
	if err != nil {
		return ParseError{Reason: err.Error()}
	}
	return ToolCall{Call: tools.Call{
		ID:        ulid.Make().String(),
		Action:    action,
		Reasoning: strings.TrimSpace(reasoning),
	}}
}
