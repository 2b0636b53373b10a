// Package patch applies exact, unique-match snippet replacements to files.
//
// A patch names a snippet that must occur exactly once in the target file,
// byte for byte. There is no fuzzy matching and no whitespace normalization:
// when the snippet is missing or ambiguous the patch is refused and the file
// is left untouched, so the caller can re-read the file and try again with a
// more specific snippet.
package patch

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/m4xw311/rayo/errors"
)

// Request describes one replacement inside one file.
type Request struct {
	Path        string
	Original    string
	Replacement string
}

// Result reports where the replacement landed. Start and End are byte
// offsets of the inserted text in the new content.
type Result struct {
	Start      int
	End        int
	SizeBefore int
	SizeAfter  int
}

// Engine holds the snippet limits.
type Engine struct {
	// MinSnippetChars rejects snippets too generic to be trusted.
	MinSnippetChars int
	// MaxSnippetRatio caps the snippet at this fraction of the file.
	MaxSnippetRatio float64
}

// Apply replaces the single occurrence of original in content.
func (e Engine) Apply(content, original, replacement string) (string, Result, error) {
	snippetLen := utf8.RuneCountInString(original)
	if snippetLen < e.MinSnippetChars {
		return "", Result{}, errors.E(errors.KindSnippetTooShort,
			"original snippet is %d characters; at least %d are required so it matches a single location",
			snippetLen, e.MinSnippetChars)
	}
	contentLen := utf8.RuneCountInString(content)
	if e.MaxSnippetRatio > 0 && float64(snippetLen) > e.MaxSnippetRatio*float64(contentLen) {
		return "", Result{}, errors.E(errors.KindSnippetTooLarge,
			"original snippet is %d of %d characters (limit %.0f%%); patch a smaller region instead of the whole file",
			snippetLen, contentLen, e.MaxSnippetRatio*100)
	}

	start, count := locate(content, original)
	switch {
	case count == 0:
		return "", Result{}, errors.E(errors.KindSnippetNotFound,
			"original snippet not found; it must match the file exactly, including whitespace and indentation")
	case count > 1:
		return "", Result{}, errors.E(errors.KindSnippetNotUnique,
			"original snippet found %d times; include more surrounding lines so it appears only once", count)
	}

	end := start + len(original)
	var b strings.Builder
	b.Grow(len(content) - len(original) + len(replacement))
	b.WriteString(content[:start])
	b.WriteString(replacement)
	b.WriteString(content[end:])
	out := b.String()

	return out, Result{
		Start:      start,
		End:        start + len(replacement),
		SizeBefore: len(content),
		SizeAfter:  len(out),
	}, nil
}

// locate returns the first match offset and the number of matches,
// overlapping matches included.
func locate(content, snippet string) (int, int) {
	first := strings.Index(content, snippet)
	if first < 0 {
		return -1, 0
	}
	count := 1
	for pos := first + 1; pos < len(content); {
		i := strings.Index(content[pos:], snippet)
		if i < 0 {
			break
		}
		count++
		pos += i + 1
	}
	return first, count
}

// ApplyFile applies req to the file on disk. The file is rewritten through a
// temporary file and rename, so on any failure it keeps its old content.
func (e Engine) ApplyFile(req Request) (Result, error) {
	info, err := os.Stat(req.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.E(errors.KindNotFound, "file does not exist: %s", req.Path)
		}
		return Result{}, errors.WrapKind(err, errors.KindIO, "stat %s", req.Path)
	}
	if info.IsDir() {
		return Result{}, errors.E(errors.KindNotReadable, "path is a directory: %s", req.Path)
	}
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, errors.WrapKind(err, errors.KindIO, "read %s", req.Path)
	}

	updated, res, err := e.Apply(string(data), req.Original, req.Replacement)
	if err != nil {
		return Result{}, err
	}
	if err := writeAtomic(req.Path, []byte(updated), info.Mode().Perm()); err != nil {
		return Result{}, errors.WrapKind(err, errors.KindIO, "write %s", req.Path)
	}
	return res, nil
}

func writeAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".rayo-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
