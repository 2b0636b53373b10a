package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/tools"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ProjectRoot = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestParseToolCalls(t *testing.T) {
	registry := tools.NewToolRegistry(testConfig(t))
	tests := []struct {
		name      string
		text      string
		want      tools.Action
		reasoning string
	}{
		{
			name:      "bare object",
			text:      `{"tool": "list_files", "parameters": {"path": "src"}, "reasoning": "look around"}`,
			want:      tools.ListFiles{Path: "src"},
			reasoning: "look around",
		},
		{
			name: "fenced object with prose",
			text: "I will read the entry point first.\n\n```json\n{\"tool\": \"read_file\", \"parameters\": {\"path\": \"main.go\"}}\n```\n",
			want: tools.ReadFile{Path: "main.go"},
		},
		{
			name: "unlabelled fence",
			text: "```\n{\"tool\": \"read_file\", \"parameters\": {\"path\": \"go.mod\"}}\n```",
			want: tools.ReadFile{Path: "go.mod"},
		},
		{
			name: "parameters omitted",
			text: `{"tool": "list_files"}`,
			want: tools.ListFiles{Path: "."},
		},
		{
			name: "timeout",
			text: `{"tool": "run_bash", "parameters": {"command": "go test ./...", "timeout": 120}}`,
			want: tools.RunBash{Command: "go test ./...", Timeout: 120 * time.Second},
		},
		{
			name: "default timeout",
			text: `{"tool": "run_bash", "parameters": {"command": "ls"}}`,
			want: tools.RunBash{Command: "ls", Timeout: 30 * time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.text, registry).(ToolCall)
			if !ok {
				t.Fatalf("expected ToolCall, got %#v", Parse(tt.text, registry))
			}
			if got.Call.Action != tt.want {
				t.Errorf("action = %#v, want %#v", got.Call.Action, tt.want)
			}
			if got.Call.Reasoning != tt.reasoning {
				t.Errorf("reasoning = %q, want %q", got.Call.Reasoning, tt.reasoning)
			}
			if got.Call.ID == "" {
				t.Error("call has no ID")
			}
		})
	}
}

func TestParseFinalAnswer(t *testing.T) {
	registry := tools.NewToolRegistry(testConfig(t))
	tests := []string{
		"The project builds cleanly and all tests pass.",
		"  Done.\n",
		"Here is the package.json you asked about:\n\n```json\n{\"name\": \"demo\", \"version\": \"1.0.0\"}\n```\n",
		"[README](README.md) explains the setup.",
		"{curly} braces delimit blocks in Go.",
		"[1] The config loader merges the global file first.",
	}
	for _, text := range tests {
		got, ok := Parse(text, registry).(FinalAnswer)
		if !ok {
			t.Errorf("Parse(%q) = %#v, want FinalAnswer", text, Parse(text, registry))
			continue
		}
		if got.Text != strings.TrimSpace(text) {
			t.Errorf("text = %q", got.Text)
		}
	}
}

func TestParseErrors(t *testing.T) {
	registry := tools.NewToolRegistry(testConfig(t))
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"empty", "   \n", "empty"},
		{"invalid json", `{"tool": "list_files",`, "not valid JSON"},
		{"array", `[{"tool": "list_files"}, {"tool": "read_file", "parameters": {"path": "a"}}]`, "exceeds one tool call"},
		{"two objects", `{"tool": "list_files"} {"tool": "list_files"}`, "exceeds one tool call"},
		{"trailing value", `{"tool": "list_files"} 42`, "unexpected content"},
		{"two fences", "```json\n{\"tool\": \"list_files\"}\n```\nthen\n```json\n{\"tool\": \"read_file\", \"parameters\": {\"path\": \"a\"}}\n```", "exceeds one tool call"},
		{"missing tool", `{"parameters": {"path": "."}}`, `"tool"`},
		{"tool not a string", `{"tool": 7}`, `"tool"`},
		{"parameters not an object", `{"tool": "read_file", "parameters": "main.go"}`, `"parameters"`},
		{"unknown tool", `{"tool": "delete_everything", "parameters": {}}`, "unknown tool"},
		{"missing required", `{"tool": "read_file", "parameters": {}}`, "invalid parameters for read_file"},
		{"timeout out of range", `{"tool": "run_bash", "parameters": {"command": "ls", "timeout": 0}}`, "invalid parameters for run_bash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.text, registry).(ParseError)
			if !ok {
				t.Fatalf("expected ParseError, got %#v", Parse(tt.text, registry))
			}
			if !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("reason %q does not mention %q", got.Reason, tt.reason)
			}
		})
	}
}
