package tools

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/patch"
)

// skippedDirs are never descended into by list_files.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"venv":         true,
	"coverage":     true,
}

func (e *Executor) listFiles(a ListFiles) (string, error) {
	abs, err := ResolvePath(e.root, a.Path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.E(errors.KindNotFound, "directory does not exist: %s", a.Path)
		}
		return "", errors.WrapKind(err, errors.KindIO, "stat %s", a.Path)
	}
	if !info.IsDir() {
		return "", errors.E(errors.KindNotADirectory, "not a directory: %s", a.Path)
	}

	l := lister{maxEntries: e.limits.MaxListEntries, maxDepth: e.limits.MaxListDepth}
	fmt.Fprintf(&l.out, "%s/\n", strings.TrimSuffix(DisplayPath(e.root, abs), "/"))
	if err := l.walk(abs, 1); err != nil {
		return "", errors.WrapKind(err, errors.KindIO, "list %s", a.Path)
	}
	if l.total == 0 {
		l.out.WriteString("  (empty)\n")
	}
	if hidden := l.total - l.shown; hidden > 0 {
		fmt.Fprintf(&l.out, "[... %d more entries not shown]\n", hidden)
	}
	return l.out.String(), nil
}

type lister struct {
	out        strings.Builder
	maxEntries int
	maxDepth   int
	shown      int
	total      int
}

func (l *lister) walk(dir string, depth int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var dirs, files []os.DirEntry
	for _, ent := range entries {
		name := ent.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if ent.IsDir() {
			if !skippedDirs[name] {
				dirs = append(dirs, ent)
			}
			continue
		}
		files = append(files, ent)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name() < dirs[j].Name() })
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	indent := strings.Repeat("  ", depth)
	for _, d := range dirs {
		l.total++
		if l.shown < l.maxEntries {
			l.shown++
			fmt.Fprintf(&l.out, "%s%s/\n", indent, d.Name())
		}
		if depth < l.maxDepth {
			// Unreadable subdirectories are listed but not expanded.
			_ = l.walk(filepath.Join(dir, d.Name()), depth+1)
		}
	}
	for _, f := range files {
		l.total++
		if l.shown >= l.maxEntries {
			continue
		}
		l.shown++
		size := ""
		if info, err := f.Info(); err == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		fmt.Fprintf(&l.out, "%s%s%s\n", indent, f.Name(), size)
	}
	return nil
}

func (e *Executor) readFile(a ReadFile, confirmed bool) (string, error) {
	abs, err := ResolvePath(e.root, a.Path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.E(errors.KindNotFound, "file does not exist: %s", a.Path)
		}
		return "", errors.WrapKind(err, errors.KindIO, "stat %s", a.Path)
	}
	if info.IsDir() {
		return "", errors.E(errors.KindNotReadable, "%s is a directory; use list_files", a.Path)
	}
	size := info.Size()
	if size > e.limits.MaxReadBytes {
		return "", errors.E(errors.KindTooLarge, "%s is %s, above the %s read limit",
			a.Path, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(e.limits.MaxReadBytes)))
	}
	if size > e.readConfirmBytes && !confirmed {
		return "", errors.E(errors.KindTooLarge, "%s is %s; reading files above %s requires confirmation",
			a.Path, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(e.readConfirmBytes)))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", errors.WrapKind(err, errors.KindIO, "read %s", a.Path)
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return "", errors.E(errors.KindNotReadable, "%s is not a UTF-8 text file", a.Path)
	}
	return NumberLines(string(data)), nil
}

// NumberLines prefixes every line of content with its 1-based number.
func NumberLines(content string) string {
	var b strings.Builder
	b.Grow(len(content) + 9*strings.Count(content, "\n") + 9)
	n := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%6d | %s", n, line)
	}
	return b.String()
}

// StripLineNumbers reverses NumberLines.
func StripLineNumbers(numbered string) string {
	var b strings.Builder
	b.Grow(len(numbered))
	for _, line := range strings.SplitAfter(numbered, "\n") {
		if i := strings.Index(line, " | "); i >= 0 && isLineNumber(line[:i]) {
			line = line[i+3:]
		}
		b.WriteString(line)
	}
	return b.String()
}

func isLineNumber(s string) bool {
	s = strings.TrimLeft(s, " ")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (e *Executor) applyPatch(a ApplyPatch) (string, error) {
	abs, err := ResolvePath(e.root, a.Path)
	if err != nil {
		return "", err
	}
	res, err := e.patcher.ApplyFile(patch.Request{Path: abs, Original: a.Original, Replacement: a.Replacement})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Patched %s: replacement occupies bytes [%d, %d); size %d -> %d bytes.\n",
		a.Path, res.Start, res.End, res.SizeBefore, res.SizeAfter)
	b.WriteString(patch.Preview(a.Path, a.Original, a.Replacement))
	return b.String(), nil
}
