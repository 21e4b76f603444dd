// Package errs defines the failure taxonomy shared by the backends, the
// schema cache and the tool dispatcher.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for the remote caller.
type Kind string

const (
	Validation    Kind = "validation"
	RejectedQuery Kind = "rejected_query"
	NotFound      Kind = "not_found"
	Backend       Kind = "backend"
	Timeout       Kind = "timeout"
	UnknownTool   Kind = "unknown_tool"
	Startup       Kind = "startup"
)

// Error is a classified error. Msg is safe to show to the remote caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind, prefixing msg. Returns nil if err is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NotFoundf is shorthand for New(NotFound, ...).
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, format, args...)
}

// KindOf classifies an arbitrary error. Unclassified errors are backend
// errors; an expired context is a timeout regardless of wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Backend
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
