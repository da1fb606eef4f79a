package errs

import (
	"errors"
	"fmt"
)

// #region kinds

// Kind classifies a pipeline failure by how it propagates.
type Kind string

const (
	// KindValidation: query rejected. User-visible, never retried.
	KindValidation Kind = "validation"
	// KindToolExecution: a backend call failed after retries. Triggers fallback.
	KindToolExecution Kind = "tool_execution"
	// KindParse: model output did not match the expected format. Degrades to a default.
	KindParse Kind = "parse"
	// KindPipeline: unexpected internal fault, caught at the orchestrator boundary.
	KindPipeline Kind = "pipeline"
)

// #endregion kinds

// #region error

// Error is a classified error. Op names the stage or call that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, errs.Parse) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	Validation    = &Error{Kind: KindValidation}
	ToolExecution = &Error{Kind: KindToolExecution}
	Parse         = &Error{Kind: KindParse}
	Pipeline      = &Error{Kind: KindPipeline}
)

// #endregion error

// #region constructors

// NewValidation builds a validation error carrying the rejection reason.
func NewValidation(reason string) *Error {
	return &Error{Kind: KindValidation, Op: "validate", Err: errors.New(reason)}
}

// NewToolExecution wraps a backend failure for the named tool.
func NewToolExecution(tool string, err error) *Error {
	return &Error{Kind: KindToolExecution, Op: tool, Err: err}
}

// NewParse records a malformed model response.
func NewParse(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

// NewPipeline wraps an unexpected internal fault.
func NewPipeline(op string, err error) *Error {
	return &Error{Kind: KindPipeline, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// #endregion constructors
