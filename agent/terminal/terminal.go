package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/m4xw311/rayo/agent"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/patch"
	"github.com/m4xw311/rayo/policy"
	"github.com/m4xw311/rayo/tools"
)

// ConfirmPrompt is printed after the preview of an operation that needs
// approval.
const ConfirmPrompt = "Proceed with this operation? [y/N] "

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"q":     true,
	"/exit": true,
	"/quit": true,
}

// IsExitCommand reports whether input ends the session.
func IsExitCommand(input string) bool {
	return exitCommands[strings.ToLower(strings.TrimSpace(input))]
}

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent    *agent.Agent
	in       io.Reader
	out      io.Writer
	plain    bool
	width    int
	style    styles
	markdown *glamour.TermRenderer

	lines chan string
}

type Option func(*Terminal)

// WithInput reads operator lines from r instead of stdin.
func WithInput(r io.Reader) Option {
	return func(t *Terminal) { t.in = r }
}

// WithOutput writes to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(t *Terminal) { t.out = w }
}

// WithPlain disables colors, borders and markdown rendering.
func WithPlain(plain bool) Option {
	return func(t *Terminal) { t.plain = plain }
}

// WithWidth sets the wrap width for rendered markdown.
func WithWidth(width int) Option {
	return func(t *Terminal) { t.width = width }
}

// New creates a new Terminal instance
func New(a *agent.Agent, opts ...Option) *Terminal {
	t := &Terminal{
		agent: a,
		in:    os.Stdin,
		out:   os.Stdout,
		width: 100,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.style = newStyles(t.plain)
	if !t.plain {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(t.width),
		)
		if err == nil {
			t.markdown = r
		}
	}
	return t
}

// Run starts the interactive terminal session. It returns when the operator
// types an exit command, input reaches EOF, or ctx is cancelled.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	t.startReader()

	if initialPrompt != "" {
		t.processTurn(ctx, initialPrompt)
	}

	for {
		fmt.Fprint(t.out, t.style.prompt("You: "))
		line, ok := t.readLine(ctx)
		if !ok {
			fmt.Fprintln(t.out)
			t.agent.Terminate(agent.Callbacks{})
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if IsExitCommand(input) {
			fmt.Fprintln(t.out, t.style.dim("Goodbye."))
			t.agent.Terminate(agent.Callbacks{})
			return nil
		}
		t.processTurn(ctx, input)
	}
}

// startReader reads operator lines on their own goroutine so that waits for
// input can be abandoned on interrupt.
func (t *Terminal) startReader() {
	t.lines = make(chan string)
	go func() {
		defer close(t.lines)
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			t.lines <- scanner.Text()
		}
	}()
}

// readLine returns the next operator line. ok is false on EOF or when ctx
// is done.
func (t *Terminal) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-t.lines:
		return line, ok
	}
}

// processTurn runs one turn under a context that an interrupt cancels.
func (t *Terminal) processTurn(ctx context.Context, input string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	err := t.agent.ProcessUserInput(turnCtx, input, t.callbacks())
	switch {
	case err == nil:
	case errors.IsKind(err, errors.KindCancelled):
		fmt.Fprintln(t.out, t.style.warn("Operation cancelled."))
	default:
		fmt.Fprintln(t.out, t.style.fail("Error: "+err.Error()))
	}
}

func (t *Terminal) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnAssistantMessage: func(message string) {
			fmt.Fprintln(t.out, t.style.title("Rayo:"))
			fmt.Fprintln(t.out, t.renderMarkdown(message))
		},
		OnToolCall: func(call tools.Call, verdict policy.Verdict) {
			if call.Reasoning != "" {
				fmt.Fprintln(t.out, t.style.dim(call.Reasoning))
			}
			fmt.Fprintln(t.out, t.style.dim("-> "+Describe(call.Action)))
			if verdict.Decision == policy.Forbidden {
				fmt.Fprintln(t.out, t.style.fail(fmt.Sprintf("refused (%s): %s", verdict.Rule, verdict.Reason)))
			}
		},
		Confirm: t.confirm,
		OnObservation: func(call tools.Call, obs tools.Observation) {
			if obs.Succeeded {
				fmt.Fprintln(t.out, t.style.dim("   "+firstLine(obs.Output)))
				return
			}
			if obs.ErrorKind == errors.KindPolicyViolation || obs.ErrorKind == errors.KindCancelled {
				return
			}
			fmt.Fprintln(t.out, t.style.fail(fmt.Sprintf("   %s failed (%s): %s", obs.Tool, obs.ErrorKind, firstLine(obs.Output))))
		},
		OnWarning: func(warning string) {
			fmt.Fprintln(t.out, t.style.warn("Warning: "+warning))
		},
	}
}

// confirm shows a preview of the operation and waits for y/yes. EOF, any
// other answer or an interrupt declines.
func (t *Terminal) confirm(ctx context.Context, call tools.Call, verdict policy.Verdict) bool {
	header := fmt.Sprintf("%s needs confirmation: %s", call.Action.ToolName(), verdict.Reason)
	fmt.Fprintln(t.out, t.style.box(header+"\n\n"+Preview(call.Action)))
	fmt.Fprint(t.out, t.style.prompt(ConfirmPrompt))

	answer, ok := t.readLine(ctx)
	if !ok {
		fmt.Fprintln(t.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		fmt.Fprintln(t.out, t.style.dim("Declined."))
		return false
	}
}

// Describe summarizes an action on one line.
func Describe(a tools.Action) string {
	switch a := a.(type) {
	case tools.ListFiles:
		return "list_files " + a.Path
	case tools.ReadFile:
		return "read_file " + a.Path
	case tools.ApplyPatch:
		return "apply_patch " + a.Path
	case tools.RunBash:
		return "run_bash $ " + a.Command
	default:
		return a.ToolName()
	}
}

// Preview renders what an action will do, for the confirmation prompt.
func Preview(a tools.Action) string {
	switch a := a.(type) {
	case tools.ApplyPatch:
		return strings.TrimRight(patch.Preview(a.Path, a.Original, a.Replacement), "\n")
	case tools.RunBash:
		return fmt.Sprintf("$ %s\n(timeout %s)", a.Command, a.Timeout)
	default:
		return Describe(a)
	}
}

func (t *Terminal) renderMarkdown(text string) string {
	if t.markdown == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := t.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

type styles struct {
	prompt func(...string) string
	title  func(...string) string
	dim    func(...string) string
	warn   func(...string) string
	fail   func(...string) string
	box    func(...string) string
}

func newStyles(plain bool) styles {
	if plain {
		same := func(s ...string) string { return strings.Join(s, " ") }
		return styles{prompt: same, title: same, dim: same, warn: same, fail: same, box: same}
	}
	return styles{
		prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render,
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Render,
		dim:    lipgloss.NewStyle().Faint(true).Render,
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render,
		fail:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render,
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1).
			Render,
	}
}
