// Package apperr classifies failures into the categories the orchestrator reacts to.
// Only ParseError is recovered locally; every other kind ends the current run or request.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of an orchestration failure.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindGeneration    Kind = "generation"
	KindParse         Kind = "parse"
)

// Error wraps an underlying error with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration marks err as a missing credential or setup problem.
func Configuration(op string, err error) error { return newError(KindConfiguration, op, err) }

// Validation marks err as a rejected request.
func Validation(op string, err error) error { return newError(KindValidation, op, err) }

// Generation marks err as a generator failure during a turn.
func Generation(op string, err error) error { return newError(KindGeneration, op, err) }

// Parse marks err as a single malformed fragment or event.
func Parse(op string, err error) error { return newError(KindParse, op, err) }

// Validationf is Validation with a formatted message.
func Validationf(op, format string, args ...any) error {
	return Validation(op, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsGeneration(err error) bool    { return KindOf(err) == KindGeneration }
func IsParse(err error) bool         { return KindOf(err) == KindParse }
