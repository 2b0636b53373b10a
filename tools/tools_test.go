package tools

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
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

func TestDescribeOrder(t *testing.T) {
	r := NewToolRegistry(testConfig(t))
	want := []string{NameListFiles, NameReadFile, NameApplyPatch, NameRunBash}
	got := r.Describe()
	if len(got) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(got))
	}
	for i, d := range got {
		if d.Name != want[i] {
			t.Errorf("tool %d = %s, want %s", i, d.Name, want[i])
		}
		if d.Description == "" || d.Parameters["type"] != "object" {
			t.Errorf("tool %s has an incomplete descriptor", d.Name)
		}
	}
}

func TestBuild(t *testing.T) {
	r := NewToolRegistry(testConfig(t))
	tests := []struct {
		name   string
		tool   string
		params map[string]any
		want   Action
	}{
		{"list default path", NameListFiles, nil, ListFiles{Path: "."}},
		{"list path", NameListFiles, map[string]any{"path": "src"}, ListFiles{Path: "src"}},
		{"read", NameReadFile, map[string]any{"path": "main.go"}, ReadFile{Path: "main.go"}},
		{"patch", NameApplyPatch, map[string]any{
			"path": "a.py", "original_snippet": "def f():", "new_snippet": "",
		}, ApplyPatch{Path: "a.py", Original: "def f():", Replacement: ""}},
		{"bash default timeout", NameRunBash, map[string]any{"command": "ls"}, RunBash{Command: "ls", Timeout: 30 * time.Second}},
		{"bash float timeout", NameRunBash, map[string]any{"command": "ls", "timeout": float64(5)}, RunBash{Command: "ls", Timeout: 5 * time.Second}},
		{"bash json.Number timeout", NameRunBash, map[string]any{"command": "ls", "timeout": json.Number("7")}, RunBash{Command: "ls", Timeout: 7 * time.Second}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Build(tc.tool, tc.params)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestBuildRejects(t *testing.T) {
	r := NewToolRegistry(testConfig(t))
	tests := []struct {
		name   string
		tool   string
		params map[string]any
	}{
		{"unknown tool", "delete_everything", map[string]any{}},
		{"missing path", NameReadFile, map[string]any{}},
		{"empty path", NameReadFile, map[string]any{"path": ""}},
		{"path wrong type", NameReadFile, map[string]any{"path": float64(3)}},
		{"missing new_snippet", NameApplyPatch, map[string]any{"path": "a", "original_snippet": "0123456789"}},
		{"missing command", NameRunBash, map[string]any{}},
		{"timeout zero", NameRunBash, map[string]any{"command": "ls", "timeout": float64(0)}},
		{"timeout above max", NameRunBash, map[string]any{"command": "ls", "timeout": float64(601)}},
		{"timeout fractional", NameRunBash, map[string]any{"command": "ls", "timeout": 1.5}},
		{"timeout string", NameRunBash, map[string]any{"command": "ls", "timeout": "5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := r.Build(tc.tool, tc.params)
			if !errors.IsKind(err, errors.KindParse) {
				t.Fatalf("expected ParseError, got action %#v, err %v", a, err)
			}
			if a != nil {
				t.Fatalf("no action may be built from invalid parameters, got %#v", a)
			}
		})
	}
}

func TestObservationRender(t *testing.T) {
	obs := Success(NameRunBash, "export OPENAI_API_KEY=sk-abcdefghijklmnopqrstuvwxyz123456\nok")
	out := obs.Render(10_000)
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwxyz123456") {
		t.Fatalf("credential leaked into observation:\n%s", out)
	}
	if !strings.Contains(out, "[REDACTED]") || !strings.Contains(out, "status: success") {
		t.Fatalf("unexpected rendering:\n%s", out)
	}

	fail := Failure(NameApplyPatch, errors.E(errors.KindSnippetNotFound, "snippet not found"))
	if fail.Succeeded || fail.ErrorKind != errors.KindSnippetNotFound {
		t.Fatalf("unexpected failure observation %+v", fail)
	}
	if !strings.Contains(fail.Render(1000), "status: error (SnippetNotFound)") {
		t.Fatalf("failure kind missing from rendering:\n%s", fail.Render(1000))
	}
	if Failure(NameReadFile, errors.New("boom")).ErrorKind != errors.KindIO {
		t.Fatal("unkinded errors should be reported as IOError")
	}
}

func TestRenderTruncatesChars(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	out := Success(NameReadFile, string(long)).Render(1000)
	if len(out) > 1400 {
		t.Fatalf("rendered output not bounded: %d bytes", len(out))
	}
	if !strings.Contains(out, "4000 characters removed") {
		t.Fatalf("missing truncation marker:\n%s", out)
	}
}

func TestTruncateLines(t *testing.T) {
	in := "l0\nl1\nl2\nl3\nl4\nl5\nl6\nl7\nl8\nl9"
	out := truncateLines(in, 4)
	for _, want := range []string{"l0", "l1", "[... 6 lines omitted ...]", "l8", "l9"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "l5") {
		t.Fatalf("middle lines should be omitted:\n%s", out)
	}
	if truncateLines("a\nb", 4) != "a\nb" {
		t.Fatal("short output must be unchanged")
	}
}
