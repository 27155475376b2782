// Package stepcore holds the shared error and result vocabulary used across
// the execution engine: the error Kinds from spec §7 and the tagged step
// outcome from spec §9's "Sum-typed step result" design note.
package stepcore

import "fmt"

// Kind enumerates the error kinds a RunInstance can surface, per spec §7.
type Kind string

const (
	KindCodeBlockError              Kind = "CodeBlockError"
	KindVarNotSet                   Kind = "VarNotSet"
	KindVarTypeError                Kind = "VarTypeError"
	KindInfiniteVarLoop             Kind = "InfiniteVarLoop"
	KindStepPassedButExpectedToFail Kind = "StepPassedButExpectedToFail"
	KindHookError                   Kind = "HookError"
)

// Error is the engine's uniform error envelope. All error kinds in spec §7
// carry the same four attributes; Continue lets user code mark a failure as
// non-branch-terminating (spec §7, "Attributes recognized on errors").
type Error struct {
	Kind     Kind
	Filename string
	Line     int
	Message  string
	Stack    string
	Continue bool
}

func (e *Error) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s at %s:%d: %s", e.Kind, e.Filename, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WithLocation returns a copy of e with filename/line filled in, unless they
// were already set — spec §4.E says pre-set filename/lineNumber are honored
// and never overwritten.
func (e *Error) WithLocation(filename string, line int) *Error {
	if e.Filename != "" || e.Line != 0 {
		return e
	}
	cp := *e
	cp.Filename = filename
	cp.Line = line
	return &cp
}

// NewCodeBlockError wraps a panic/error raised inside a user expression block.
func NewCodeBlockError(message, stack string) *Error {
	return &Error{Kind: KindCodeBlockError, Message: message, Stack: stack}
}

// NewVarNotSet reports a variable that was read but never assigned anywhere
// reachable from VarResolver.findVarValue (spec §4.D step 5).
func NewVarNotSet(name string) *Error {
	return &Error{Kind: KindVarNotSet, Message: fmt.Sprintf("variable %q was never set", name)}
}

// NewVarTypeError reports a resolved variable value that isn't a scalar.
func NewVarTypeError(name string, value any) *Error {
	return &Error{Kind: KindVarTypeError, Message: fmt.Sprintf("variable %q resolved to non-scalar value %v (%T)", name, value, value)}
}

// NewInfiniteVarLoop reports a CallStackExceeded condition translated during
// recursive variable resolution (spec §4.D, replaceVars).
func NewInfiniteVarLoop(name string) *Error {
	return &Error{Kind: KindInfiniteVarLoop, Message: fmt.Sprintf("variable %q resolution recursed without converging", name)}
}

// NewStepPassedButExpectedToFail synthesizes the error for a step whose
// isExpectedFail flag was true but which nonetheless passed (spec §4.E step 8).
func NewStepPassedButExpectedToFail(filename string, line int) *Error {
	return &Error{
		Kind:     KindStepPassedButExpectedToFail,
		Filename: filename,
		Line:     line,
		Message:  "step was expected to fail but passed",
	}
}

// NewHookError wraps a failure raised by a hook's code block.
func NewHookError(message, stack string) *Error {
	return &Error{Kind: KindHookError, Message: message, Stack: stack}
}

// Outcome is the tagged step/branch result spec §9 asks for instead of three
// independent booleans.
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}
