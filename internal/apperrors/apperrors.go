// Package apperrors defines the tagged error categories shared across
// lakeforge's components. Callers branch on category with the Is*
// helpers rather than inspecting error message text.
package apperrors

import (
	"github.com/cockroachdb/errors"
)

type category int

const (
	categoryInvalidInput category = iota
	categoryNotFound
	categoryTransient
	categoryExecution
	categoryTimeout
)

var (
	markInvalidInput = errors.New("invalid_input")
	markNotFound     = errors.New("not_found")
	markTransient    = errors.New("transient")
	markExecution    = errors.New("execution_error")
	markTimeout      = errors.New("timeout")
)

func mark(c category) error {
	switch c {
	case categoryInvalidInput:
		return markInvalidInput
	case categoryNotFound:
		return markNotFound
	case categoryTransient:
		return markTransient
	case categoryExecution:
		return markExecution
	case categoryTimeout:
		return markTimeout
	default:
		return markExecution
	}
}

// InvalidInput wraps err (or builds one from msg) tagged invalid_input.
func InvalidInput(msg string) error { return errors.Mark(errors.New(msg), markInvalidInput) }

// WrapInvalidInput tags an existing error invalid_input.
func WrapInvalidInput(err error) error { return errors.Mark(err, markInvalidInput) }

// NotFound wraps msg tagged not_found.
func NotFound(msg string) error { return errors.Mark(errors.New(msg), markNotFound) }

// WrapNotFound tags an existing error not_found.
func WrapNotFound(err error) error { return errors.Mark(err, markNotFound) }

// Transient tags storage/bus/catalog/jobstore failures that may clear on retry.
func Transient(msg string) error { return errors.Mark(errors.New(msg), markTransient) }

// WrapTransient tags an existing error transient.
func WrapTransient(err error) error { return errors.Mark(err, markTransient) }

// Execution tags a failure produced during job execution logic itself.
func Execution(msg string) error { return errors.Mark(errors.New(msg), markExecution) }

// WrapExecution tags an existing error execution_error.
func WrapExecution(err error) error { return errors.Mark(err, markExecution) }

// Timeout tags a deadline/context-cancellation failure.
func Timeout(msg string) error { return errors.Mark(errors.New(msg), markTimeout) }

// WrapTimeout tags an existing error timeout.
func WrapTimeout(err error) error { return errors.Mark(err, markTimeout) }

func IsInvalidInput(err error) bool { return errors.Is(err, markInvalidInput) }
func IsNotFound(err error) bool     { return errors.Is(err, markNotFound) }
func IsTransient(err error) bool    { return errors.Is(err, markTransient) }
func IsExecution(err error) bool    { return errors.Is(err, markExecution) }
func IsTimeout(err error) bool      { return errors.Is(err, markTimeout) }

// Retryable reports whether the bus should redeliver rather than dead-letter.
// Transient and timeout failures are retried; invalid input, not-found and
// execution failures are permanent for a given payload.
func Retryable(err error) bool {
	return IsTransient(err) || IsTimeout(err)
}
