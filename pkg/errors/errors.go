// Package errors provides the closed set of error kinds surfaced by DSI.
// Every failure leaving the core is an *Error carrying one Kind, a message,
// optional context and the wrapped cause.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Kind classifies an error for programmatic handling.
type Kind string

const (
	// KindValue reports malformed user input: bad find expressions,
	// non-read-only queries, wrong parameters.
	KindValue Kind = "ValueError"
	// KindType reports a structural mismatch inside a reader.
	KindType Kind = "TypeError"
	// KindSchemaMismatch reports a data card whose fields differ from its template.
	KindSchemaMismatch Kind = "SchemaMismatch"
	// KindUnitConflict reports an attempt to redeclare a different unit.
	KindUnitConflict Kind = "UnitConflict"
	// KindConstraint reports a primary or foreign key violation.
	KindConstraint Kind = "ConstraintViolation"
	// KindDialect reports any other backend failure.
	KindDialect Kind = "DialectError"
	// KindIO reports missing or unreadable input.
	KindIO Kind = "IOError"
)

// Error is the base error type for all DSI errors.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Kind, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Tuple returns the (kind, message) pair callers outside the core consume.
func (e *Error) Tuple() (Kind, string) {
	return e.Kind, e.Error()
}

// New creates a new Error.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error. If err already is an *Error its kind is kept
// and only the message is layered on top.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}

	var inner *Error
	if errors.As(err, &inner) {
		kind = inner.Kind
	}

	return &Error{
		Kind:       kind,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	e := Wrap(err, kind, fmt.Sprintf(format, args...))
	e.StackTrace = captureStack(2)
	return e
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates an IOError for a missing input.
func FileNotFound(path string, cause error) *Error {
	return Wrap(cause, KindIO, "cannot read input").WithContext("path", path)
}

// UnitConflict creates a unit redefinition error.
func UnitConflict(table, column, existing, requested string) *Error {
	return Newf(KindUnitConflict, "unit for %s.%s is already %q, cannot redeclare as %q",
		table, column, existing, requested)
}

// NestedValue creates a TypeError for a non-scalar value where a flat one was required.
func NestedValue(path, key string) *Error {
	return Newf(KindType, "value for key %q is nested; only flat scalars are supported", key).
		WithContext("path", path)
}

// --- Error checking utilities ---

// IsKind checks if an error has a specific kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the kind from an error. Foreign errors are reported as
// DialectError, the catch-all of the closed set.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDialect
}

// As is errors.As, re-exported so callers need a single errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As. The
// first error decides IsKind and KindOf.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
