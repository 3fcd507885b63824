// Package apperr classifies scheduling failures. Anything that is not an
// *Error is an unexpected fault.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidRequest       Kind = "InvalidRequest"
	NotFound             Kind = "NotFound"
	Forbidden            Kind = "Forbidden"
	SlotUnavailable      Kind = "SlotUnavailable"
	AlreadyTerminal      Kind = "AlreadyTerminal"
	ConfigurationMissing Kind = "ConfigurationMissing"

	// Internal is reported for unclassified errors; never constructed directly.
	Internal Kind = "Internal"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.E(k, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) *Error { return E(InvalidRequest, format, args...) }

func Missing(format string, args ...any) *Error { return E(NotFound, format, args...) }

func Denied(format string, args ...any) *Error { return E(Forbidden, format, args...) }

func Unavailable(format string, args ...any) *Error { return E(SlotUnavailable, format, args...) }

func Terminal(format string, args ...any) *Error { return E(AlreadyTerminal, format, args...) }

func Unconfigured(format string, args ...any) *Error {
	return E(ConfigurationMissing, format, args...)
}

// KindOf returns the classification of err, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Result is the tagged outcome handed to presentation code.
type Result[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data,omitempty"`
	Error   *Failure `json:"error,omitempty"`
}

type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ResultOf folds a (value, error) pair into a Result. Unclassified errors
// become a generic Internal failure so storage details never leak.
func ResultOf[T any](v T, err error) Result[T] {
	if err == nil {
		return Result[T]{Success: true, Data: v}
	}
	var e *Error
	if errors.As(err, &e) {
		return Result[T]{Error: &Failure{Kind: e.Kind, Message: e.Message}}
	}
	return Result[T]{Error: &Failure{Kind: Internal, Message: "internal error"}}
}
