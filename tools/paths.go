package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/rayo/errors"
)

// HasParentSegment reports whether p contains a ".." path element.
func HasParentSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ResolvePath turns p into an absolute path inside root. Paths with ".."
// elements, home-directory shorthand, or that land outside root (symlinks
// included) are PolicyViolation errors.
func ResolvePath(root, p string) (string, error) {
	if p == "" {
		p = "."
	}
	if strings.HasPrefix(p, "~") {
		return "", errors.E(errors.KindPolicyViolation, "home directory paths are not allowed: %s", p)
	}
	if HasParentSegment(p) {
		return "", errors.E(errors.KindPolicyViolation, "path traversal with '..' is not allowed: %s", p)
	}
	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Join(root, p)
	}
	if !within(root, abs) {
		return "", errors.E(errors.KindPolicyViolation, "path is outside the project root: %s", p)
	}
	realRoot := evalExisting(root)
	if real := evalExisting(abs); !within(realRoot, real) {
		return "", errors.E(errors.KindPolicyViolation, "path resolves outside the project root through a symlink: %s", p)
	}
	return abs, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of p.
func evalExisting(p string) string {
	rest := ""
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return p
			}
			return filepath.Join(real, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// DisplayPath returns p relative to root when possible.
func DisplayPath(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil && within(root, p) {
		return filepath.ToSlash(rel)
	}
	return p
}
