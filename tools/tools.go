package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Descriptor is the model-facing description of a tool.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type registeredTool struct {
	Descriptor
	schema *jsonschema.Schema
	build  func(params map[string]any) (Action, error)
}

// ToolRegistry holds the fixed tool set and turns validated parameter
// objects into Actions.
type ToolRegistry struct {
	order []string
	tools map[string]*registeredTool
}

func NewToolRegistry(cfg *config.Config) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]*registeredTool)}
	defaultTimeout := cfg.Limits.DefaultCommandTimeout

	r.register(Descriptor{
		Name: NameListFiles,
		Description: fmt.Sprintf("Lists files and directories as a tree (up to %d levels deep). "+
			"Hidden entries and build/cache directories are skipped. Path is relative to the project root and defaults to \".\".",
			cfg.Limits.MaxListDepth),
		Parameters: objectSchema(map[string]any{
			"path": stringProp("Directory to list, relative to the project root.", 0),
		}),
	}, func(p map[string]any) (Action, error) {
		path := stringParam(p, "path")
		if path == "" {
			path = "."
		}
		return ListFiles{Path: path}, nil
	})

	r.register(Descriptor{
		Name: NameReadFile,
		Description: "Reads a text file. Every line is prefixed with its line number and \" | \"; " +
			"the prefix is not part of the file and must not be copied into patches.",
		Parameters: objectSchema(map[string]any{
			"path": stringProp("File to read, relative to the project root.", 1),
		}, "path"),
	}, func(p map[string]any) (Action, error) {
		return ReadFile{Path: stringParam(p, "path")}, nil
	})

	r.register(Descriptor{
		Name: NameApplyPatch,
		Description: fmt.Sprintf("Replaces one exact snippet of a file. original_snippet must appear exactly once, "+
			"matching the file byte for byte including whitespace and indentation, and be at least %d characters long. "+
			"Read the file first.", cfg.Limits.MinSnippetChars),
		Parameters: objectSchema(map[string]any{
			"path":             stringProp("File to patch, relative to the project root.", 1),
			"original_snippet": stringProp("Exact text to replace.", 1),
			"new_snippet":      stringProp("Replacement text. May be empty to delete the snippet.", 0),
		}, "path", "original_snippet", "new_snippet"),
	}, func(p map[string]any) (Action, error) {
		return ApplyPatch{
			Path:        stringParam(p, "path"),
			Original:    stringParam(p, "original_snippet"),
			Replacement: stringParam(p, "new_snippet"),
		}, nil
	})

	r.register(Descriptor{
		Name: NameRunBash,
		Description: fmt.Sprintf("Runs a shell command with sh -c in the project root. "+
			"timeout is in seconds (default %d, max %d). Returns the exit code, stdout and stderr.",
			defaultTimeout, cfg.Limits.MaxCommandTimeout),
		Parameters: objectSchema(map[string]any{
			"command": stringProp("Shell command to run.", 1),
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds.",
				"minimum":     1,
				"maximum":     cfg.Limits.MaxCommandTimeout,
			},
		}, "command"),
	}, func(p map[string]any) (Action, error) {
		secs := defaultTimeout
		if v, ok := p["timeout"]; ok {
			n, err := intParam(v)
			if err != nil {
				return nil, err
			}
			secs = n
		}
		return RunBash{Command: stringParam(p, "command"), Timeout: time.Duration(secs) * time.Second}, nil
	})

	return r
}

func (r *ToolRegistry) register(d Descriptor, build func(map[string]any) (Action, error)) {
	r.order = append(r.order, d.Name)
	r.tools[d.Name] = &registeredTool{
		Descriptor: d,
		schema:     mustCompileSchema(d.Name, d.Parameters),
		build:      build,
	}
}

// Describe returns the tools in a fixed order.
func (r *ToolRegistry) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor)
	}
	return out
}

// Build validates params against the tool's schema and returns the typed
// Action. Every failure is a ParseError.
func (r *ToolRegistry) Build(name string, params map[string]any) (Action, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, errors.E(errors.KindParse, "unknown tool %q; available tools: %s", name, strings.Join(r.order, ", "))
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := t.schema.Validate(params); err != nil {
		return nil, errors.E(errors.KindParse, "invalid parameters for %s: %s", name, schemaErrorText(err))
	}
	a, err := t.build(params)
	if err != nil {
		return nil, errors.WrapKind(err, errors.KindParse, "invalid parameters for %s", name)
	}
	return a, nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string, minLength int) map[string]any {
	p := map[string]any{"type": "string", "description": desc}
	if minLength > 0 {
		p["minLength"] = minLength
	}
	return p
}

func mustCompileSchema(name string, params map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(params)
	if err != nil {
		panic(fmt.Sprintf("tool %s schema: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	url := name + ".json"
	if err := c.AddResource(url, strings.NewReader(string(b))); err != nil {
		panic(fmt.Sprintf("tool %s schema: %v", name, err))
	}
	return c.MustCompile(url)
}

// schemaErrorText flattens a validation error to its leaf messages, which
// read better to the model than the schema URLs.
func schemaErrorText(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "parameters"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}

func stringParam(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func intParam(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.New("expected an integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errors.Wrapf(err, "expected an integer, got %s", n)
		}
		return int(i), nil
	default:
		return 0, errors.New("expected an integer, got %T", v)
	}
}
