// Package failure carries the error taxonomy shared by every stage of a run.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindResolution Kind = "RESOLUTION"
	KindCollision  Kind = "COLLISION"
	KindBackend    Kind = "BACKEND"
	KindConfig     Kind = "CONFIG"
	KindNoArtifact Kind = "NO_ARTIFACT"
)

// AbortsQueue reports whether a failure of this kind cancels the commands after it.
func (k Kind) AbortsQueue() bool {
	return k == KindResolution || k == KindCollision
}

// Sentinels for errors.Is matching by kind.
var (
	Validation = &Error{Kind: KindValidation}
	Resolution = &Error{Kind: KindResolution}
	Collision  = &Error{Kind: KindCollision}
	Backend    = &Error{Kind: KindBackend}
	Config     = &Error{Kind: KindConfig}
	NoArtifact = &Error{Kind: KindNoArtifact}
)

// Error is the structured failure reported to callers as
// {command_index, kind, message}. CommandIndex is -1 when no single command is at fault.
type Error struct {
	Kind         Kind   `json:"kind"`
	CommandIndex int    `json:"command_index"`
	Message      string `json:"message"`
	Cause        error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Detail()
	if e.CommandIndex >= 0 {
		return fmt.Sprintf("%s: command %d: %s", e.Kind, e.CommandIndex, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Detail is the message with the cause appended, without kind or index.
func (e *Error) Detail() string {
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message + ": " + e.Cause.Error()
}

// Report flattens err into the {command_index, kind, message} form callers
// see. Errors outside the taxonomy are reported as BACKEND failures.
func Report(err error) *Error {
	if err == nil {
		return nil
	}
	fe := As(err)
	if fe == nil {
		return &Error{Kind: KindBackend, CommandIndex: -1, Message: err.Error()}
	}
	return &Error{Kind: fe.Kind, CommandIndex: fe.CommandIndex, Message: fe.Detail()}
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a failure attributed to a command index.
func New(kind Kind, index int, format string, args ...any) *Error {
	return &Error{
		Kind:         kind,
		CommandIndex: index,
		Message:      fmt.Sprintf(format, args...),
	}
}

// Wrap creates a failure that wraps an underlying cause.
func Wrap(kind Kind, index int, message string, cause error) *Error {
	return &Error{
		Kind:         kind,
		CommandIndex: index,
		Message:      message,
		Cause:        cause,
	}
}

// KindOf extracts the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}
