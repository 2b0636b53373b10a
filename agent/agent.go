package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m4xw311/rayo/config"
	"github.com/m4xw311/rayo/errors"
	"github.com/m4xw311/rayo/llm"
	"github.com/m4xw311/rayo/policy"
	"github.com/m4xw311/rayo/prompt"
	"github.com/m4xw311/rayo/session"
	"github.com/m4xw311/rayo/tools"
)

// Callbacks connect the loop to an interaction mode. Any of them may be nil;
// a nil Confirm declines every operation that needs confirmation.
type Callbacks struct {
	OnStateChange      func(state State)
	OnToolCall         func(call tools.Call, verdict policy.Verdict)
	Confirm            func(ctx context.Context, call tools.Call, verdict policy.Verdict) bool
	OnObservation      func(call tools.Call, obs tools.Observation)
	OnAssistantMessage func(message string)
	OnWarning          func(warning string)
}

// Agent runs the conversation loop for one session.
type Agent struct {
	Config   *config.Config
	History  *session.History
	Client   llm.Client
	Registry *tools.ToolRegistry
	Policy   *policy.Policy
	Executor *tools.Executor

	logger *slog.Logger
	state  State
}

// New wires the registry, policy, executor and system prompt for cfg.
func New(cfg *config.Config, client llm.Client, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := tools.NewToolRegistry(cfg)
	pol, err := policy.New(cfg)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := prompt.Load(cfg, registry)
	if err != nil {
		return nil, err
	}
	history := session.New(systemPrompt)
	logger = logger.With("session", history.ID)

	return &Agent{
		Config:   cfg,
		History:  history,
		Client:   client,
		Registry: registry,
		Policy:   pol,
		Executor: tools.NewExecutor(cfg, logger),
		logger:   logger,
		state:    StateAwaitingInput,
	}, nil
}

func (a *Agent) State() State { return a.state }

// Terminate ends the session. Later input is rejected.
func (a *Agent) Terminate(cb Callbacks) {
	a.setState(StateTerminated, cb)
}

// ProcessUserInput runs one operator turn: the model is called repeatedly,
// with each requested tool checked, confirmed when needed and executed,
// until it gives a final answer. Provider failures, cancellation and
// exhausted retry or round limits end the turn with an error; every other
// failure is fed back to the model as an observation.
func (a *Agent) ProcessUserInput(ctx context.Context, input string, cb Callbacks) error {
	if a.state == StateTerminated {
		return errors.New("session has terminated")
	}
	a.History.Append(session.Turn{Role: session.RoleUser, Content: input})

	limits := a.Config.Limits
	parseFailures := 0
	rounds := 0
	for {
		if ctx.Err() != nil {
			return a.cancelled(ctx, cb)
		}
		a.setState(StateAwaitingModel, cb)
		text, err := a.Client.Generate(ctx, a.History.Turns())
		if err != nil {
			if ctx.Err() != nil || errors.IsKind(err, errors.KindCancelled) {
				return a.cancelled(ctx, cb)
			}
			a.logger.Error("agent.model_failed", "error", err)
			a.setState(StateAwaitingInput, cb)
			return err
		}
		a.History.Append(session.Turn{Role: session.RoleAssistant, Content: text})

		a.setState(StateParsing, cb)
		switch p := Parse(text, a.Registry).(type) {
		case FinalAnswer:
			a.setState(StateResponding, cb)
			if cb.OnAssistantMessage != nil {
				cb.OnAssistantMessage(p.Text)
			}
			a.setState(StateAwaitingInput, cb)
			return nil

		case ParseError:
			parseFailures++
			a.logger.Warn("agent.parse_error", "reason", p.Reason, "attempt", parseFailures)
			a.appendObservation(tools.Observation{
				ErrorKind: errors.KindParse,
				Output:    formatReminder(p.Reason, a.Registry),
			})
			if parseFailures > limits.MaxParseRetries {
				a.setState(StateAwaitingInput, cb)
				return errors.E(errors.KindParse, "model response could not be parsed after %d retries: %s", limits.MaxParseRetries, p.Reason)
			}
			warn(cb, fmt.Sprintf("could not parse the model response (%s); retrying %d/%d", p.Reason, parseFailures, limits.MaxParseRetries))

		case ToolCall:
			parseFailures = 0
			rounds++
			if rounds > limits.MaxToolRounds {
				a.appendObservation(tools.Observation{
					Tool:      p.Call.Action.ToolName(),
					ErrorKind: errors.KindLimitExceeded,
					Output:    fmt.Sprintf("Tool call limit of %d per turn reached; the call was not executed.", limits.MaxToolRounds),
				})
				a.setState(StateAwaitingInput, cb)
				return errors.E(errors.KindLimitExceeded, "stopped after %d tool calls in one turn", limits.MaxToolRounds)
			}
			obs := a.handleCall(ctx, p.Call, cb)
			a.appendObservation(obs)
			if cb.OnObservation != nil {
				cb.OnObservation(p.Call, obs)
			}
			if obs.ErrorKind == errors.KindCancelled || ctx.Err() != nil {
				a.setState(StateAwaitingInput, cb)
				return errors.E(errors.KindCancelled, "operation cancelled")
			}
		}
	}
}

// handleCall checks call against the policy exactly once and returns the
// observation to record for it.
func (a *Agent) handleCall(ctx context.Context, call tools.Call, cb Callbacks) tools.Observation {
	name := call.Action.ToolName()
	verdict := a.Policy.Check(call.Action)
	a.logger.Info("agent.tool_call",
		"call", call.ID,
		"tool", name,
		"decision", verdict.Decision.String(),
		"rule", verdict.Rule)
	if cb.OnToolCall != nil {
		cb.OnToolCall(call, verdict)
	}

	confirmed := false
	switch verdict.Decision {
	case policy.Forbidden:
		a.logger.Warn("policy.forbidden", "call", call.ID, "tool", name, "rule", verdict.Rule, "reason", verdict.Reason)
		return tools.Observation{
			Tool:      name,
			ErrorKind: errors.KindPolicyViolation,
			Output:    fmt.Sprintf("Refused by the safety policy (%s): %s. Do not retry this operation; choose a different approach.", verdict.Rule, verdict.Reason),
		}
	case policy.RequiresConfirmation:
		a.setState(StateAwaitingConfirmation, cb)
		approved := cb.Confirm != nil && cb.Confirm(ctx, call, verdict)
		if ctx.Err() != nil {
			return cancelledObservation(name)
		}
		if !approved {
			a.logger.Info("agent.declined", "call", call.ID, "tool", name)
			return tools.Observation{
				Tool:      name,
				ErrorKind: errors.KindPolicyViolation,
				Output:    fmt.Sprintf("The user declined this operation (%s). Propose an alternative or ask the user how to proceed.", verdict.Reason),
			}
		}
		confirmed = true
	}

	a.setState(StateExecuting, cb)
	obs := a.Executor.Run(ctx, call.Action, confirmed)
	if obs.ErrorKind == errors.KindCancelled {
		return cancelledObservation(name)
	}
	return obs
}

// cancelled records an explicit cancellation notice and returns to a clean
// state for the next operator input.
func (a *Agent) cancelled(ctx context.Context, cb Callbacks) error {
	a.logger.Info("agent.cancelled")
	a.appendObservation(cancelledObservation(""))
	a.setState(StateAwaitingInput, cb)
	err := ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	return errors.WrapKind(err, errors.KindCancelled, "operation cancelled")
}

func cancelledObservation(tool string) tools.Observation {
	return tools.Observation{
		Tool:      tool,
		ErrorKind: errors.KindCancelled,
		Output:    "Operation cancelled by the user. Partial results were discarded.",
	}
}

func (a *Agent) appendObservation(obs tools.Observation) {
	a.History.Append(session.Turn{
		Role:      session.RoleTool,
		Content:   obs.Render(a.Config.Limits.MaxObservationChars),
		Tool:      obs.Tool,
		ErrorKind: obs.ErrorKind,
	})
}

func (a *Agent) setState(s State, cb Callbacks) {
	if a.state == s {
		return
	}
	a.state = s
	if cb.OnStateChange != nil {
		cb.OnStateChange(s)
	}
}

func warn(cb Callbacks, msg string) {
	if cb.OnWarning != nil {
		cb.OnWarning(msg)
	}
}

func formatReminder(reason string, registry *tools.ToolRegistry) string {
	names := make([]string, 0, 4)
	for _, d := range registry.Describe() {
		names = append(names, d.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your last response could not be parsed: %s.\n", reason)
	b.WriteString("Reply with plain text for a final answer, or with exactly one tool call as a single JSON object:\n")
	b.WriteString("```json\n{\"tool\": \"<name>\", \"parameters\": {...}, \"reasoning\": \"<why>\"}\n```\n")
	fmt.Fprintf(&b, "Available tools: %s.", strings.Join(names, ", "))
	return b.String()
}
