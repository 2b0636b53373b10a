package patch

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Preview renders the replacement as a unified diff of the two snippets.
// It does not touch the file.
func Preview(path, original, replacement string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(ensureNewline(original)),
		B:        difflib.SplitLines(ensureNewline(replacement)),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil || out == "" {
		return "--- " + path + "\n+++ " + path + "\n(no textual change)\n"
	}
	return out
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
