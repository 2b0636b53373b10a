// Package agent runs the conversation loop between the operator, the model
// and the tools.
//
// Each operator message starts a turn. Within a turn the model is called
// with the full history and its response is parsed into one of three
// outcomes:
//
//   - FinalAnswer: prose for the operator; the turn ends.
//   - ToolCall: a single action. It is checked by the safety policy exactly
//     once, confirmed by the operator when the policy requires it, executed,
//     and its observation is appended to the history before the model is
//     called again.
//   - ParseError: a notice describing the expected format is appended and
//     the model is asked again, up to limits.max_parse_retries times.
//
// Interaction modes observe and steer the loop through Callbacks:
//
//	err := a.ProcessUserInput(ctx, input, agent.Callbacks{
//	    OnAssistantMessage: func(msg string) { fmt.Println(msg) },
//	    Confirm: func(ctx context.Context, call tools.Call, v policy.Verdict) bool {
//	        return askOperator(ctx, call)
//	    },
//	})
//
// Cancelling ctx aborts the model call, the confirmation or the running
// command, records an "operation cancelled" observation and returns an
// error of kind Cancelled. The agent is then ready for the next input.
package agent
