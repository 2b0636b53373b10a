package tools

import "time"

// Tool names as the model spells them.
const (
	NameListFiles  = "list_files"
	NameReadFile   = "read_file"
	NameApplyPatch = "apply_patch"
	NameRunBash    = "run_bash"
)

// Action is one of the fixed tool invocations. The set is closed: only the
// types in this file implement it, and only ToolRegistry.Build creates them
// from model output.
type Action interface {
	ToolName() string
	isAction()
}

// ListFiles lists a directory tree relative to the project root.
type ListFiles struct {
	Path string
}

// ReadFile returns a file's content with line numbers.
type ReadFile struct {
	Path string
}

// ApplyPatch replaces the unique occurrence of Original with Replacement.
type ApplyPatch struct {
	Path        string
	Original    string
	Replacement string
}

// RunBash runs Command with sh -c in the project root.
type RunBash struct {
	Command string
	Timeout time.Duration
}

func (ListFiles) ToolName() string  { return NameListFiles }
func (ReadFile) ToolName() string   { return NameReadFile }
func (ApplyPatch) ToolName() string { return NameApplyPatch }
func (RunBash) ToolName() string    { return NameRunBash }

func (ListFiles) isAction()  {}
func (ReadFile) isAction()   {}
func (ApplyPatch) isAction() {}
func (RunBash) isAction()    {}

// Call is an Action requested by the model, with the reasoning it gave.
type Call struct {
	ID        string
	Action    Action
	Reasoning string
}
