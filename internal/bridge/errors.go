// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrReleased indicates an operation on a bridge after Release
	ErrReleased = errors.New("bridge released")

	// ErrInitFailed indicates the engine could not be created or wired
	ErrInitFailed = errors.New("engine initialization failed")

	// ErrUnableToLoad indicates a bundle source could not be read
	ErrUnableToLoad = errors.New("unable to read bundle source")

	// ErrNotObject indicates a global that must be an object holds something else
	ErrNotObject = errors.New("global is not an object")

	// ErrNotFunction indicates a call target that is not callable
	ErrNotFunction = errors.New("target is not a function")

	// ErrNotConstructible indicates a host type that cannot be exposed as a class
	ErrNotConstructible = errors.New("host type cannot be exposed as a class")
)

// ErrorKind is the closed set of failure classes reported by a Bridge.
type ErrorKind int

const (
	// UnableToLoad: bundle source could not be read.
	UnableToLoad ErrorKind = iota + 1
	// EvaluationError: the engine raised a script execution or compilation fault.
	EvaluationError
	// TimeoutError: the bounded wait on a dispatched operation expired.
	TimeoutError
	// UnknownError: any other failure.
	UnknownError
)

func (k ErrorKind) String() string {
	switch k {
	case UnableToLoad:
		return "unable to load"
	case EvaluationError:
		return "evaluation error"
	case TimeoutError:
		return "timeout"
	case UnknownError:
		return "unknown error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a classified bridge failure.
type Error struct {
	Kind ErrorKind
	// Detail carries the offending source line or engine message.
	Detail string
	// Cause is the underlying failure, when one exists outside the engine.
	Cause error

	// reported is set once the handler saw e. A failure rethrown through a
	// host callback reaches the outer operation as the same *Error.
	reported bool
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "":
		return e.Kind.String() + ": " + e.Detail
	case e.Cause != nil:
		return e.Kind.String() + ": " + e.Cause.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so callers can test
// errors.Is(err, &bridge.Error{Kind: bridge.TimeoutError}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Detail == "" && t.Cause == nil && t.Kind == e.Kind
}

// KindOf returns the classification of err, or 0 if err is not a bridge error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ErrorHandler receives every classified failure. It is called on the
// goroutine of the operation that failed.
type ErrorHandler func(*Error)
