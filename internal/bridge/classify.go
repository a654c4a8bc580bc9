// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/aplane-algo/scriptbridge/internal/dispatch"
)

// classify maps a failure onto the error taxonomy.
//
// Engine exceptions format themselves by running script code, so classify
// must run on the dispatcher worker whenever err may hold one.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return &Error{Kind: TimeoutError, Detail: interrupted.Error()}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &Error{Kind: EvaluationError, Detail: ex.Error()}
	}

	switch {
	case errors.Is(err, dispatch.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: TimeoutError, Detail: err.Error(), Cause: err}
	case errors.Is(err, ErrUnableToLoad):
		return &Error{Kind: UnableToLoad, Cause: err}
	case errors.Is(err, ErrNotObject), errors.Is(err, ErrNotFunction):
		return &Error{Kind: EvaluationError, Detail: err.Error(), Cause: err}
	case errors.Is(err, dispatch.ErrClosed):
		return &Error{Kind: UnknownError, Cause: fmt.Errorf("%w: %w", ErrReleased, err)}
	}
	return &Error{Kind: UnknownError, Cause: err}
}

// isReferenceFault reports whether err is a ReferenceError thrown by the
// engine, such as a use of an undeclared name. It must run on the worker.
func (b *Bridge) isReferenceFault(err error) bool {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return false
	}
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return false
	}
	found := false
	b.vm.Try(func() {
		for p := obj.Prototype(); p != nil; p = p.Prototype() {
			if p.SameAs(b.referenceProto) {
				found = true
				return
			}
		}
	})
	return found
}

// report classifies err, logs it and hands it to the registered handler.
// A failure already delivered by a nested operation is returned without
// invoking the handler again.
func (b *Bridge) report(op string, err error) error {
	classified := classify(err)
	if classified == nil {
		return nil
	}

	var e *Error
	if !errors.As(classified, &e) {
		e = &Error{Kind: UnknownError, Cause: classified}
	}

	if e.reported {
		b.log.Debug("failure already reported", zap.String("op", op), zap.Stringer("kind", e.Kind))
		return e
	}
	e.reported = true

	b.log.Warn("bridge operation failed",
		zap.String("op", op),
		zap.Stringer("kind", e.Kind),
		zap.String("detail", e.Detail),
		zap.NamedError("cause", e.Cause))

	if h := b.handler.Load(); h != nil {
		(*h)(e)
	}
	return e
}

