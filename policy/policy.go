// Package policy decides whether a tool action may run, must be confirmed by
// the operator, or is refused outright.
//
// Rules are evaluated in a fixed order and the first match wins:
//
//  1. path traversal (".." segments, "~", or escaping the project root)
//  2. sensitive paths (system directories, credentials, configured globs)
//  3. dangerous commands (recursive delete, sudo, disk formatting, ...)
//  4. sensitive commands (publish, push, install, configured patterns)
//  5. any patch or command needs confirmation
//  6. listing and reading are allowed, except large reads
//
// A verdict depends only on the action, the configuration and the size of
// the target file on disk.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/tools"
)

// Decision is the outcome class of a policy check.
type Decision int

const (
	Allowed Decision = iota
	RequiresConfirmation
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case RequiresConfirmation:
		return "requires_confirmation"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Verdict is the outcome of a policy check. Rule names the rule that
// decided it.
type Verdict struct {
	Decision Decision
	Rule     string
	Reason   string
}

func allow(rule, reason string) Verdict {
	return Verdict{Decision: Allowed, Rule: rule, Reason: reason}
}

func confirm(rule, reason string) Verdict {
	return Verdict{Decision: RequiresConfirmation, Rule: rule, Reason: reason}
}

func forbid(rule, format string, a ...interface{}) Verdict {
	return Verdict{Decision: Forbidden, Rule: rule, Reason: fmt.Sprintf(format, a...)}
}

// Rule names.
const (
	RulePathTraversal    = "path_traversal"
	RuleSensitivePath    = "sensitive_path"
	RuleCommandChaining  = "command_chaining"
	RuleDeniedCommand    = "denied_command"
	RuleSensitiveCommand = "sensitive_command"
	RuleModifiesFile     = "modifies_file"
	RuleRunsCommand      = "runs_command"
	RuleLargeRead        = "large_read"
	RuleReadOnly         = "read_only"
)

// defaultDeniedPaths are matched against absolute paths and paths relative
// to the project root.
var defaultDeniedPaths = []string{
	"/etc/**", "/usr/**", "/bin/**", "/sbin/**", "/boot/**", "/dev/**",
	"/proc/**", "/sys/**", "/lib/**", "/lib64/**", "/System/**", "/Library/**",
	"**/.ssh", "**/.ssh/**", "**/.aws/**", "**/.gnupg/**", "**/.kube/**",
	"**/.docker/config.json", "**/.netrc", "**/.git-credentials", "**/.env",
	"**/" + config.DirName, "**/" + config.DirName + "/**",
}

// Policy decides whether tool actions may run. It is built once per
// session from the configuration and never changes afterwards.
type Policy struct {
	root             string
	deniedPaths      []string
	deniedCommands   []*regexp.Regexp
	confirmCommands  []*regexp.Regexp
	allowChaining    bool
	readConfirmBytes int64

	stat func(string) (os.FileInfo, error)
}

// New builds a policy from cfg. Invalid globs or regular expressions in the
// policy section are configuration errors.
func New(cfg *config.Config) (*Policy, error) {
	p := &Policy{
		root:             cfg.ProjectRoot,
		deniedPaths:      append(append([]string{}, defaultDeniedPaths...), cfg.Policy.DeniedPaths...),
		allowChaining:    cfg.Policy.AllowChaining,
		readConfirmBytes: cfg.Policy.ReadConfirmBytes,
		stat:             os.Stat,
	}
	for _, g := range cfg.Policy.DeniedPaths {
		if !doublestar.ValidatePattern(g) {
			return nil, errors.New("invalid glob in policy.denied_paths: '%s'", g)
		}
	}
	var err error
	if p.deniedCommands, err = compileAll(cfg.Policy.DeniedCommands, "policy.denied_commands"); err != nil {
		return nil, err
	}
	if p.confirmCommands, err = compileAll(cfg.Policy.ConfirmCommands, "policy.confirm_commands"); err != nil {
		return nil, err
	}
	return p, nil
}

func compileAll(patterns []string, field string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid regex in %s: '%s'", field, pat)
		}
		out = append(out, re)
	}
	return out, nil
}

// Check evaluates a against the rules.
func (p *Policy) Check(a tools.Action) Verdict {
	switch a := a.(type) {
	case tools.ListFiles:
		if v, denied := p.checkPath(a.Path); denied {
			return v
		}
		return allow(RuleReadOnly, "listing is read-only")
	case tools.ReadFile:
		abs, v, denied := p.resolve(a.Path)
		if denied {
			return v
		}
		if info, err := p.stat(abs); err == nil && !info.IsDir() && info.Size() > p.readConfirmBytes {
			return confirm(RuleLargeRead, fmt.Sprintf("file is %d bytes, above the %d byte confirmation threshold",
				info.Size(), p.readConfirmBytes))
		}
		return allow(RuleReadOnly, "reading is read-only")
	case tools.ApplyPatch:
		if v, denied := p.checkPath(a.Path); denied {
			return v
		}
		return confirm(RuleModifiesFile, "patches modify files")
	case tools.RunBash:
		return p.ClassifyCommand(a.Command)
	default:
		return forbid("unknown_action", "unknown action %T", a)
	}
}

func (p *Policy) checkPath(path string) (Verdict, bool) {
	_, v, denied := p.resolve(path)
	return v, denied
}

// resolve applies rules 1 and 2 to an action path.
func (p *Policy) resolve(path string) (string, Verdict, bool) {
	abs, err := tools.ResolvePath(p.root, path)
	if err != nil {
		return "", forbid(RulePathTraversal, "%s", err.Error()), true
	}
	rel := tools.DisplayPath(p.root, abs)
	if glob, ok := p.matchDenied(rel, abs); ok {
		return "", forbid(RuleSensitivePath, "path %s matches the protected pattern %s", path, glob), true
	}
	return abs, Verdict{}, false
}

// matchDenied reports the first denied glob matching any of the candidate
// spellings of a path.
func (p *Policy) matchDenied(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		c = filepath.ToSlash(c)
		forms := []string{c}
		if strings.HasPrefix(c, "/") {
			forms = append(forms, strings.TrimPrefix(c, "/"))
		}
		for _, g := range p.deniedPaths {
			for _, f := range forms {
				if ok, _ := doublestar.Match(g, f); ok {
					return g, true
				}
			}
		}
	}
	return "", false
}
