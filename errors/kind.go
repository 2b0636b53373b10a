package errors

import "fmt"

// Kind classifies a failure so the agent loop can decide whether it is fed
// back to the model as an observation or surfaced to the operator.
type Kind string

const (
	KindParse           Kind = "ParseError"
	KindPolicyViolation Kind = "PolicyViolation"

	KindNotFound      Kind = "NotFound"
	KindNotReadable   Kind = "NotReadable"
	KindNotADirectory Kind = "NotADirectory"
	KindTooLarge      Kind = "TooLarge"

	KindSnippetNotFound  Kind = "SnippetNotFound"
	KindSnippetNotUnique Kind = "SnippetNotUnique"
	KindSnippetTooShort  Kind = "SnippetTooShort"
	KindSnippetTooLarge  Kind = "SnippetTooLarge"

	KindTimeout        Kind = "Timeout"
	KindProcessFailure Kind = "ProcessFailure"

	KindProvider      Kind = "ProviderError"
	KindCancelled     Kind = "Cancelled"
	KindIO            Kind = "IOError"
	KindLimitExceeded Kind = "LimitExceeded"
)

// Error is an error tagged with a Kind. Its message is meant to be read by
// the model, so it carries no source location.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E creates a kinded error.
func E(kind Kind, format string, a ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// WrapKind tags err with kind. If err is nil, WrapKind returns nil.
func WrapKind(err error, kind Kind, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the kind of the outermost kinded error in err's chain.
func KindOf(err error) (Kind, bool) {
	var ke *Error
	if As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
