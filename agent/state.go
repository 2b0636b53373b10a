package agent

import "fmt"

// State is the position of the conversation loop.
type State int

const (
	StateAwaitingInput State = iota
	StateAwaitingModel
	StateParsing
	StateAwaitingConfirmation
	StateExecuting
	StateResponding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateParsing:
		return "parsing"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateExecuting:
		return "executing"
	case StateResponding:
		return "responding"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
