package session

import (
	"github.com/m4xw311/rayo/errors"
	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry of the conversation. Tool turns carry the name of the
// tool they report on ("" for synthesized notices) and the failure kind.
type Turn struct {
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Tool      string      `json:"tool,omitempty"`
	ErrorKind errors.Kind `json:"error_kind,omitempty"`
}

// History is the append-only conversation of one interactive session.
type History struct {
	ID    string
	turns []Turn
}

// New starts a history whose first turn is the system prompt.
func New(systemPrompt string) *History {
	h := &History{ID: ulid.Make().String()}
	if systemPrompt != "" {
		h.turns = append(h.turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	return h
}

// Append adds a turn to the end of the history.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
}

// Turns returns a copy of the history.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int { return len(h.turns) }

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}
