package core

import (
	"errors"
	"fmt"
)

// Error kinds shared by every package that validates or attaches potentials.
var (
	// ErrPrecondition indicates a missing, wrong-kind or unattached move engine.
	ErrPrecondition = errors.New("hpmcpatch: precondition not met")

	// ErrCompilationFailed indicates the compiler service rejected a generated unit.
	ErrCompilationFailed = errors.New("hpmcpatch: compilation failed")

	// ErrAttachedImmutable indicates a change that is only legal while detached.
	ErrAttachedImmutable = errors.New("hpmcpatch: cannot change while attached")

	// ErrInvalidParameter indicates a non-finite value or a length mismatch.
	ErrInvalidParameter = errors.New("hpmcpatch: invalid parameter")
)

// Error carries the operation and field a failure belongs to.
type Error struct {
	Op     string
	Field  string
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg + ": " + e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, op, field, format string, args ...any) *Error {
	return &Error{
		Op:     op,
		Field:  field,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Precondition reports an engine setup problem found before compilation.
func Precondition(op, format string, args ...any) *Error {
	return Errorf(ErrPrecondition, op, "", format, args...)
}

// Immutable reports a write to field while attached.
func Immutable(op, field string) *Error {
	return Errorf(ErrAttachedImmutable, op, field, "detach first")
}

// Invalid reports a rejected value for field.
func Invalid(op, field, format string, args ...any) *Error {
	return Errorf(ErrInvalidParameter, op, field, format, args...)
}

// CompileError wraps a compiler diagnostic for one generated unit.
type CompileError struct {
	Unit       string
	Target     string
	Diagnostic string
	Err        error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("compile %s (%s): %s", e.Unit, e.Target, ErrCompilationFailed.Error())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += "\n" + e.Diagnostic
	}
	return msg
}

func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCompilationFailed}
	}
	return []error{ErrCompilationFailed, e.Err}
}
