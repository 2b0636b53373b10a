package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/m4xw311/rayo/errors"
)

// Observation is the result of one tool execution, or a synthesized notice
// standing in for one.
type Observation struct {
	Tool      string
	Succeeded bool
	Output    string
	ErrorKind errors.Kind
}

// Success builds a successful observation.
func Success(tool, output string) Observation {
	return Observation{Tool: tool, Succeeded: true, Output: output}
}

// Failure builds a failed observation from err. Errors without a kind are
// reported as IOError.
func Failure(tool string, err error) Observation {
	kind, ok := errors.KindOf(err)
	if !ok {
		kind = errors.KindIO
	}
	return Observation{Tool: tool, ErrorKind: kind, Output: err.Error()}
}

// Render formats the observation for the conversation history. Credentials
// are scrubbed and the output is capped at maxChars.
func (o Observation) Render(maxChars int) string {
	var b strings.Builder
	tool := o.Tool
	if tool == "" {
		tool = "none"
	}
	if o.Succeeded {
		fmt.Fprintf(&b, "[tool: %s] status: success\n", tool)
	} else {
		fmt.Fprintf(&b, "[tool: %s] status: error (%s)\n", tool, o.ErrorKind)
	}
	b.WriteString(truncateChars(ScrubCredentials(o.Output), maxChars))
	return b.String()
}

var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`),
}

const redactedPlaceholder = "[REDACTED]"

// ScrubCredentials replaces known credential patterns in text with [REDACTED].
func ScrubCredentials(text string) string {
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

func truncateChars(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	removed := len(s) - max
	head := validPrefix(s, max/2)
	tail := validSuffix(s, max-max/2)
	return head + fmt.Sprintf("\n\n[WARNING: output truncated, %d characters removed from the middle. "+
		"Re-run the tool with more targeted parameters to see specific parts.]\n\n", removed) + tail
}

// truncateLines keeps the first and last max/2 lines of s.
func truncateLines(s string, max int) string {
	if max <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	headCount := max / 2
	tailCount := max - headCount
	omitted := len(lines) - headCount - tailCount
	marker := fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted)
	head := strings.Join(lines[:headCount], "\n")
	tail := strings.Join(lines[len(lines)-tailCount:], "\n")
	return head + marker + tail
}

// validPrefix cuts s to at most n bytes without splitting a rune.
func validPrefix(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func validSuffix(s string, n int) string {
	i := len(s) - n
	for i > 0 && i < len(s) && !isRuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
