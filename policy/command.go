package policy

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/m4xw311/rayo/tools"
	"github.com/mattn/go-shellwords"
)

// segment is one simple command of a shell line together with the operator
// that precedes it ("" for the first).
type segment struct {
	op     string
	text   string
	tokens []string
}

// words returns the tokens starting at the command that actually runs,
// skipping variable assignments and wrappers such as env or nohup.
func (s segment) words() []string {
	t := s.tokens
	for len(t) > 0 {
		switch {
		case isAssignment(t[0]):
			t = t[1:]
		case wrappers[filepath.Base(t[0])]:
			t = t[1:]
			for len(t) > 0 && (strings.HasPrefix(t[0], "-") || isNumeric(t[0]) || isAssignment(t[0])) {
				t = t[1:]
			}
		default:
			return t
		}
	}
	return t
}

func (s segment) command() string {
	w := s.words()
	if len(w) == 0 {
		return ""
	}
	return filepath.Base(w[0])
}

var wrappers = map[string]bool{
	"env": true, "nohup": true, "time": true, "nice": true, "ionice": true,
	"timeout": true, "xargs": true, "command": true, "exec": true, "builtin": true,
	"stdbuf": true, "watch": true,
}

var chainOps = map[string]bool{";": true, "&&": true, "||": true, "&": true, "\n": true}

// splitCommand cuts a shell line on control operators outside quotes.
// Redirection operators become blanks so their targets remain visible as
// ordinary tokens. It also reports command or process substitution.
func splitCommand(line string) (segs []segment, substitution bool) {
	var cur strings.Builder
	var quote rune
	escaped := false
	op := ""
	flush := func(next string) {
		segs = append(segs, segment{op: op, text: strings.TrimSpace(cur.String())})
		cur.Reset()
		op = next
	}

	rs := []rune(line)
	peek := func(i int) rune {
		if i+1 < len(rs) {
			return rs[i+1]
		}
		return 0
	}
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if escaped {
			cur.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' && quote != '\'' {
			escaped = true
			cur.WriteRune(r)
			continue
		}
		if quote != 0 {
			if r == quote {
				quote = 0
			} else if quote == '"' && (r == '`' || (r == '$' && peek(i) == '(')) {
				substitution = true
			}
			cur.WriteRune(r)
			continue
		}
		switch {
		case r == '\'' || r == '"':
			quote = r
		case r == '`', r == '$' && peek(i) == '(', (r == '<' || r == '>') && peek(i) == '(':
			substitution = true
		case r == '>' || r == '<':
			if n := peek(i); n == '>' || n == '&' || n == '|' {
				i++
			}
			cur.WriteRune(' ')
			continue
		case r == '&':
			switch peek(i) {
			case '>':
				i++
				cur.WriteRune(' ')
			case '&':
				i++
				flush("&&")
			default:
				flush("&")
			}
			continue
		case r == '|':
			switch peek(i) {
			case '|':
				i++
				flush("||")
			case '&':
				i++
				flush("|")
			default:
				flush("|")
			}
			continue
		case r == ';' || r == '\n':
			flush(string(r))
			continue
		}
		cur.WriteRune(r)
	}
	flush("")

	for i := range segs {
		segs[i].tokens = tokenize(segs[i].text)
	}
	return segs, substitution
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	args, err := shellwords.Parse(text)
	if err != nil {
		return strings.Fields(text)
	}
	return args
}

// chained reports whether segs run more than one command other than
// through a pipe. A trailing separator alone does not count, a trailing
// background operator does.
func chained(segs []segment) bool {
	for _, s := range segs {
		if !chainOps[s.op] {
			continue
		}
		if s.text != "" || s.op == "&" {
			return true
		}
	}
	return false
}

type commandRule struct {
	name   string
	reason string
	match  func(s segment) bool
}

// dangerousRules are checked against every segment of a command.
var dangerousRules = []commandRule{
	{"recursive_delete", "recursive deletion is not allowed", func(s segment) bool {
		w := s.words()
		switch s.command() {
		case "rm":
			for _, t := range w[1:] {
				if t == "--recursive" || (strings.HasPrefix(t, "-") && !strings.HasPrefix(t, "--") && strings.ContainsAny(t, "rR")) {
					return true
				}
			}
		case "find":
			for i, t := range w[1:] {
				if t == "-delete" || ((t == "-exec" || t == "-execdir") && i+2 < len(w) && filepath.Base(w[i+2]) == "rm") {
					return true
				}
			}
		}
		return false
	}},
	{"privilege_escalation", "privilege escalation is not allowed", commandIn("sudo", "su", "doas", "pkexec", "runuser")},
	{"disk_format", "disk formatting and partitioning tools are not allowed", func(s segment) bool {
		cmd := s.command()
		if strings.HasPrefix(cmd, "mkfs") {
			return true
		}
		switch cmd {
		case "fdisk", "sfdisk", "cfdisk", "parted", "wipefs", "sgdisk", "mkswap", "shred":
			return true
		case "dd":
			for _, t := range s.words() {
				if strings.HasPrefix(t, "of=/dev/") {
					return true
				}
			}
		}
		return false
	}},
	{"power_control", "shutting down or rebooting the machine is not allowed", func(s segment) bool {
		w := s.words()
		switch s.command() {
		case "shutdown", "reboot", "poweroff", "halt":
			return true
		case "init", "telinit":
			return len(w) > 1 && (w[1] == "0" || w[1] == "6")
		case "systemctl":
			for _, t := range w[1:] {
				switch t {
				case "poweroff", "reboot", "halt", "kexec", "suspend", "hibernate":
					return true
				}
			}
		}
		return false
	}},
	{"system_permissions", "recursive ownership or permission changes on / are not allowed", func(s segment) bool {
		switch s.command() {
		case "chmod", "chown", "chgrp":
		default:
			return false
		}
		recursive, root := false, false
		for _, t := range s.words()[1:] {
			if t == "-R" || t == "--recursive" {
				recursive = true
			}
			if t == "/" || t == "/*" {
				root = true
			}
		}
		return recursive && root
	}},
}

// rawDangerous catch forms that segmentation hides.
var rawDangerous = []struct {
	name   string
	reason string
	re     *regexp.Regexp
}{
	{"fork_bomb", "fork bombs are not allowed", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;?\s*:`)},
	{"fork_bomb", "fork bombs are not allowed", regexp.MustCompile(`(\w+)\(\)\s*\{\s*(\w+)\s*\|\s*(\w+)\s*&\s*\}`)},
	{"block_device_write", "writing to block devices is not allowed", regexp.MustCompile(`>\s*/dev/(sd|hd|vd|xvd|nvme|mmcblk|disk|mapper/)`)},
	{"remote_execution", "executing downloaded scripts is not allowed", regexp.MustCompile(`\b(sh|bash|zsh|dash|ksh|source|\.)\s+<\(\s*(curl|wget|fetch)\b`)},
	{"remote_execution", "executing downloaded scripts is not allowed", regexp.MustCompile(`\$\(\s*(curl|wget|fetch)\b`)},
}

var (
	fetchers     = map[string]bool{"curl": true, "wget": true, "fetch": true}
	interpreters = map[string]bool{
		"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true, "fish": true,
		"python": true, "python3": true, "perl": true, "ruby": true, "node": true, "php": true,
	}
)

func commandIn(names ...string) func(segment) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(s segment) bool { return set[s.command()] }
}

// sensitiveCommands run after confirmation under their own rule name.
var sensitiveCommands = []struct {
	cmd  string
	subs []string
}{
	{"git", []string{"push"}},
	{"npm", []string{"publish", "install", "i", "uninstall", "unpublish"}},
	{"yarn", []string{"publish", "add", "install"}},
	{"pnpm", []string{"publish", "add", "install"}},
	{"pip", []string{"install", "uninstall"}},
	{"pip3", []string{"install", "uninstall"}},
	{"go", []string{"install", "get"}},
	{"cargo", []string{"publish", "install"}},
	{"gem", []string{"push", "install"}},
	{"twine", []string{"upload"}},
	{"docker", []string{"push", "rm", "rmi"}},
	{"kubectl", []string{"apply", "delete", "create"}},
	{"helm", []string{"install", "upgrade", "uninstall"}},
	{"terraform", []string{"apply", "destroy"}},
	{"brew", []string{"install", "uninstall"}},
	{"apt", []string{"install", "remove"}},
	{"apt-get", []string{"install", "remove"}},
}

// ClassifyCommand evaluates a shell command line. Commands no rule refuses
// still require confirmation.
func (p *Policy) ClassifyCommand(command string) Verdict {
	segs, substitution := splitCommand(command)

	// Rules 1 and 2 on argument tokens.
	for _, s := range segs {
		w := s.words()
		for i, t := range w {
			if i == 0 {
				continue
			}
			for _, cand := range pathCandidates(t) {
				if tools.HasParentSegment(cand) {
					return forbid(RulePathTraversal, "argument %q contains a '..' path segment", t)
				}
				if glob, ok := p.matchDenied(p.tokenForms(cand)...); ok {
					return forbid(RuleSensitivePath, "argument %q matches the protected pattern %s", t, glob)
				}
			}
		}
	}

	// Rule 3.
	for _, s := range segs {
		if script, ok := inlineScript(s); ok {
			if v := p.ClassifyCommand(script); v.Decision == Forbidden {
				return v
			}
		}
		for _, rule := range dangerousRules {
			if rule.match(s) {
				return forbid(rule.name, "%s: %s", rule.reason, s.text)
			}
		}
	}
	for _, rd := range rawDangerous {
		if rd.re.MatchString(command) {
			return forbid(rd.name, "%s", rd.reason)
		}
	}
	fetching := false
	for _, s := range segs {
		if s.op != "|" {
			fetching = false
		}
		cmd := s.command()
		if s.op == "|" && fetching && interpreters[cmd] {
			return forbid("remote_execution", "piping downloaded content into %s is not allowed", cmd)
		}
		if fetchers[cmd] {
			fetching = true
		}
	}
	if !p.allowChaining {
		if chained(segs) {
			return forbid(RuleCommandChaining, "run one command at a time; ';', '&&', '||', '&' and newlines are not allowed")
		}
		if substitution {
			return forbid(RuleCommandChaining, "command substitution is not allowed")
		}
	}
	for _, re := range p.deniedCommands {
		if re.MatchString(command) {
			return forbid(RuleDeniedCommand, "command matches the denied pattern %s", re.String())
		}
	}

	// Rule 4.
	for _, s := range segs {
		w := s.words()
		if len(w) < 2 {
			continue
		}
		cmd := filepath.Base(w[0])
		for _, sc := range sensitiveCommands {
			if sc.cmd != cmd {
				continue
			}
			for _, sub := range sc.subs {
				if firstArg(cmd, w[1:]) == sub {
					return confirm(RuleSensitiveCommand, cmd+" "+sub+" changes state outside the working tree")
				}
			}
		}
	}
	for _, re := range p.confirmCommands {
		if re.MatchString(command) {
			return confirm(RuleSensitiveCommand, "command matches the confirmation pattern "+re.String())
		}
	}

	// Rule 5.
	return confirm(RuleRunsCommand, "shell commands run only after confirmation")
}

// tokenForms spells a path argument relative to the project root where
// possible, plus its literal form.
func (p *Policy) tokenForms(tok string) []string {
	if filepath.IsAbs(tok) {
		forms := []string{filepath.Clean(tok)}
		if rel, err := filepath.Rel(p.root, tok); err == nil && !strings.HasPrefix(rel, "..") {
			forms = append(forms, rel)
		}
		return forms
	}
	return []string{tok, filepath.Clean(tok)}
}

// pathCandidates returns the parts of a token that could name a file:
// the token itself and the value of a --flag=value form.
func pathCandidates(tok string) []string {
	var out []string
	if looksLikePath(tok) {
		out = append(out, tok)
	}
	if i := strings.IndexByte(tok, '='); i >= 0 && looksLikePath(tok[i+1:]) {
		out = append(out, tok[i+1:])
	}
	return out
}

func looksLikePath(s string) bool {
	if s == "" || strings.HasPrefix(s, "-") {
		return false
	}
	return strings.ContainsAny(s, "/\\") || strings.HasPrefix(s, ".") || strings.HasPrefix(s, "~")
}

// valueFlags are global options that consume the following token, per
// command.
var valueFlags = map[string]map[string]bool{
	"git":     {"-C": true, "-c": true, "--git-dir": true, "--work-tree": true, "--namespace": true},
	"npm":     {"--prefix": true, "-C": true, "--userconfig": true},
	"yarn":    {"--cwd": true},
	"pnpm":    {"-C": true, "--dir": true, "--filter": true},
	"go":      {"-C": true},
	"docker":  {"-H": true, "--host": true, "-c": true, "--context": true, "--config": true, "-l": true, "--log-level": true},
	"kubectl": {"-n": true, "--namespace": true, "--context": true, "--kubeconfig": true, "-s": true, "--server": true},
	"helm":    {"-n": true, "--namespace": true, "--kube-context": true, "--kubeconfig": true},
	"apt":     {"-o": true, "-c": true},
	"apt-get": {"-o": true, "-c": true},
}

// firstArg returns the subcommand of cmd: the first argument that is
// neither an option nor the value of one.
func firstArg(cmd string, args []string) string {
	takesValue := valueFlags[cmd]
	for i := 0; i < len(args); i++ {
		a := args[i]
		if takesValue[a] {
			i++
			continue
		}
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}

var shells = map[string]bool{"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true}

// inlineScript returns the command string a segment hands to another shell
// through sh -c or eval.
func inlineScript(s segment) (string, bool) {
	w := s.words()
	if len(w) < 2 {
		return "", false
	}
	switch cmd := s.command(); {
	case cmd == "eval":
		return strings.Join(w[1:], " "), true
	case shells[cmd]:
		for i := 1; i < len(w)-1; i++ {
			t := w[i]
			if strings.HasPrefix(t, "-") && !strings.HasPrefix(t, "--") && strings.ContainsRune(t[1:], 'c') {
				return w[i+1], true
			}
		}
	}
	return "", false
}

func isAssignment(t string) bool {
	i := strings.IndexByte(t, '=')
	if i <= 0 {
		return false
	}
	for _, r := range t[:i] {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func isNumeric(t string) bool {
	if t == "" {
		return false
	}
	for _, r := range t {
		if (r < '0' || r > '9') && r != '.' && r != 's' && r != 'm' {
			return false
		}
	}
	return true
}
