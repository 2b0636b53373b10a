// Package prompt assembles the system prompt from markdown sections under a
// token budget.
package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/tools"
)

//go:embed system_prompt.md
var defaultPrompt string

// ToolsSection is the section replaced by the generated tool list.
const ToolsSection = "Available Tools"

// Section is one "## " section of the prompt. Lower priorities are more
// important; priorities up to AlwaysInclude are never dropped.
type Section struct {
	Name     string
	Content  string
	Priority int
}

const AlwaysInclude = 3

var priorities = map[string]int{
	"Identity":                  1,
	"Core Principles":           1,
	"Response Format":           1,
	"Session Initialization":    2,
	ToolsSection:                3,
	"Guardrails":                3,
	"Guardrails and Validation": 3,
	"Workflow":                  4,
	"Workflow Guidelines":       4,
	"Best Practices":            5,
	"Examples":                  5,
	"Example Interactions":      5,
}

// Priority returns the priority of a section name; unknown sections get 7.
func Priority(name string) int {
	if p, ok := priorities[name]; ok {
		return p
	}
	return 7
}

// ParseSections splits text on "## " headings. Text before the first
// heading is dropped.
func ParseSections(text string) []Section {
	var (
		out  []Section
		cur  *Section
		body []string
	)
	flush := func() {
		if cur != nil {
			cur.Content = strings.TrimRight(strings.Join(body, "\n"), "\n")
			out = append(out, *cur)
		}
	}
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
		}
		if !inFence && strings.HasPrefix(line, "## ") {
			flush()
			name := strings.TrimSpace(line[3:])
			cur = &Section{Name: name, Priority: Priority(name)}
			body = []string{line}
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	flush()
	return out
}

// EstimateTokens approximates the token count as one token per four
// characters.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Build joins the sections that fit in budget tokens. Sections keep their
// document order; priorities only decide which are dropped.
func Build(sections []Section, budget int) string {
	keep := make([]bool, len(sections))
	used := 0
	for i, s := range sections {
		if s.Priority <= AlwaysInclude {
			keep[i] = true
			used += EstimateTokens(s.Content)
		}
	}
	order := make([]int, 0, len(sections))
	for i, s := range sections {
		if s.Priority > AlwaysInclude {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return sections[order[a]].Priority < sections[order[b]].Priority })
	for _, i := range order {
		cost := EstimateTokens(sections[i].Content)
		if used+cost > budget {
			continue
		}
		keep[i] = true
		used += cost
	}

	var parts []string
	for i, s := range sections {
		if keep[i] {
			parts = append(parts, s.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// RenderTools renders the generated "Available Tools" section.
func RenderTools(descs []tools.Descriptor) string {
	var b strings.Builder
	b.WriteString("## " + ToolsSection + "\n")
	for _, d := range descs {
		fmt.Fprintf(&b, "\n### %s\n%s\n", d.Name, d.Description)
		if params, err := json.Marshal(d.Parameters); err == nil {
			fmt.Fprintf(&b, "Parameters (JSON schema): %s\n", params)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Load reads the configured prompt, or the built-in one, replaces its tool
// section with the registry's tools and applies the token budget.
func Load(cfg *config.Config, registry *tools.ToolRegistry) (string, error) {
	text := defaultPrompt
	if cfg.CustomPromptPath != "" {
		data, err := os.ReadFile(cfg.CustomPromptPath)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read custom prompt '%s'", cfg.CustomPromptPath)
		}
		text = string(data)
	}
	sections := ParseSections(text)
	if len(sections) == 0 {
		sections = []Section{{Name: "Identity", Content: strings.TrimSpace(text), Priority: 1}}
	}

	toolSection := Section{Name: ToolsSection, Content: RenderTools(registry.Describe()), Priority: Priority(ToolsSection)}
	replaced := false
	for i := range sections {
		if sections[i].Name == ToolsSection {
			sections[i] = toolSection
			replaced = true
		}
	}
	if !replaced {
		sections = append(sections, toolSection)
	}
	return Build(sections, cfg.PromptTokenBudget), nil
}
