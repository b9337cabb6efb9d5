// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"fmt"

	"github.com/pkg/errors"
)

// UnsupportedOperationError is returned when the traced function does something the tracer can't
// represent in a graph: data-dependent control flow outside Cond, zero-sized inputs to Map,
// data-dependent slicing, or the use of values captured from an enclosing trace.
type UnsupportedOperationError struct {
	cause error
}

// InvalidConfigurationError is returned when the export options are contradictory.
// It doesn't depend on the input values.
type InvalidConfigurationError struct {
	cause error
}

func newUnsupported(format string, args ...any) *UnsupportedOperationError {
	return &UnsupportedOperationError{cause: errors.Errorf(format, args...)}
}

func newInvalidConfiguration(format string, args ...any) *InvalidConfigurationError {
	return &InvalidConfigurationError{cause: errors.Errorf(format, args...)}
}

// panicUnsupported panics with an UnsupportedOperationError, to be caught at the API boundary.
func panicUnsupported(format string, args ...any) {
	panic(newUnsupported(format, args...))
}

// panicInvalidConfiguration panics with an InvalidConfigurationError, to be caught at the API boundary.
func panicInvalidConfiguration(format string, args ...any) {
	panic(newInvalidConfiguration(format, args...))
}

// Error implements error.
func (e *UnsupportedOperationError) Error() string { return "unsupported operation: " + e.cause.Error() }

// Unwrap returns the underlying error, which carries the stack trace.
func (e *UnsupportedOperationError) Unwrap() error { return e.cause }

// Format prints the stack trace of the cause with %+v.
func (e *UnsupportedOperationError) Format(s fmt.State, verb rune) {
	formatWithCause(s, verb, "unsupported operation", e.cause)
}

// Error implements error.
func (e *InvalidConfigurationError) Error() string { return "invalid configuration: " + e.cause.Error() }

// Unwrap returns the underlying error, which carries the stack trace.
func (e *InvalidConfigurationError) Unwrap() error { return e.cause }

// Format prints the stack trace of the cause with %+v.
func (e *InvalidConfigurationError) Format(s fmt.State, verb rune) {
	formatWithCause(s, verb, "invalid configuration", e.cause)
}

func formatWithCause(s fmt.State, verb rune, prefix string, cause error) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s: %+v", prefix, cause)
		return
	}
	_, _ = fmt.Fprintf(s, "%s: %s", prefix, cause.Error())
}

// IsUnsupported returns whether err is (or wraps) an UnsupportedOperationError.
func IsUnsupported(err error) bool {
	var target *UnsupportedOperationError
	return errors.As(err, &target)
}

// IsInvalidConfiguration returns whether err is (or wraps) an InvalidConfigurationError.
func IsInvalidConfiguration(err error) bool {
	var target *InvalidConfigurationError
	return errors.As(err, &target)
}
