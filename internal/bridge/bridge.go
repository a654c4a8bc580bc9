// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package bridge runs a single embedded JavaScript engine behind a
// goroutine-safe API.
//
// All engine access happens on one dispatcher worker. Values cross the
// boundary as value.Value. Failures are classified into the ErrorKind
// taxonomy and delivered to a registered ErrorHandler; operations that
// return a value yield Undefined on failure instead of an error.
//
// Typical use:
//
//	b, err := bridge.New(bridge.Options{Logger: log})
//	if err != nil {
//	    return err
//	}
//	defer b.Release()
//
//	b.SetErrorHandler(func(e *bridge.Error) { log.Warn(e.Error()) })
//	if err := b.LoadBundle(f); err != nil {
//	    return err
//	}
//	greeting := b.Call("greet", value.String("world"))
package bridge

import (
	"fmt"
	"io"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/aplane-algo/scriptbridge/internal/value"
)

// lookup reads a global, including lexical (let/const) bindings.
// It returns nil when the name is not bound.
func (b *Bridge) lookup(key string) (v goja.Value, err error) {
	if ex := b.vm.Try(func() { v = b.vm.Get(key) }); ex != nil {
		return nil, ex
	}
	return v, nil
}

// Get returns the global named key. When no such global exists, key is
// evaluated as source text and its result returned. Undeclared names yield
// Undefined without reporting an error.
func (b *Bridge) Get(key string) value.Value {
	v, _ := b.do("get", func() (value.Value, error) {
		g, err := b.lookup(key)
		if err != nil {
			return value.Undefined(), err
		}
		if g != nil {
			return b.toHost(g)
		}
		res, err := b.vm.RunString(key)
		if err != nil {
			return value.Undefined(), err
		}
		return b.toHost(res)
	})
	return v
}

// GetGlobal returns the global named key without evaluating anything.
// ok is false when the global is absent; a global explicitly set to
// Undefined is present.
func (b *Bridge) GetGlobal(key string) (v value.Value, ok bool) {
	v, _ = b.do("getGlobal", func() (value.Value, error) {
		g, err := b.lookup(key)
		if err != nil {
			return value.Undefined(), err
		}
		ok = g != nil
		return b.toHost(g)
	})
	return v, ok
}

// GetReference returns a live reference to the global object named key.
func (b *Bridge) GetReference(key string) (*value.Reference, error) {
	var ref *value.Reference
	_, err := b.do("getReference", func() (value.Value, error) {
		g, err := b.lookup(key)
		if err != nil {
			return value.Undefined(), err
		}
		obj, ok := g.(*goja.Object)
		if !ok {
			return value.Undefined(), fmt.Errorf("%w: %s", ErrNotObject, key)
		}
		ref = b.handles.put(obj)
		return value.Ref(ref), nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Set binds v as the global key, replacing any previous binding.
func (b *Bridge) Set(key string, v value.Value) error {
	_, err := b.do("set", func() (value.Value, error) {
		jv, err := b.toEngine(v)
		if err != nil {
			return value.Undefined(), err
		}
		return value.Undefined(), b.vm.Set(key, jv)
	})
	return err
}

// Call invokes the global function name with args.
func (b *Bridge) Call(name string, args ...value.Value) value.Value {
	v, _ := b.do("call", func() (value.Value, error) {
		g, err := b.lookup(name)
		if err != nil {
			return value.Undefined(), err
		}
		fn, ok := goja.AssertFunction(g)
		if !ok {
			return value.Undefined(), fmt.Errorf("%w: %s", ErrNotFunction, name)
		}
		return b.apply(fn, goja.Undefined(), args)
	})
	return v
}

// CallMethod invokes method on the engine object behind ref.
func (b *Bridge) CallMethod(ref *value.Reference, method string, args ...value.Value) value.Value {
	v, _ := b.do("callMethod", func() (value.Value, error) {
		obj, err := b.handles.resolve(ref)
		if err != nil {
			return value.Undefined(), err
		}
		fn, ok := goja.AssertFunction(obj.Get(method))
		if !ok {
			return value.Undefined(), fmt.Errorf("%w: %s", ErrNotFunction, method)
		}
		return b.apply(fn, obj, args)
	})
	return v
}

// CallFunction invokes fn, which may be a host function or an engine
// function returned by an earlier operation.
func (b *Bridge) CallFunction(fn *value.Function, args ...value.Value) value.Value {
	v, _ := b.do("callFunction", func() (value.Value, error) {
		jv, err := b.toEngine(value.Func(fn))
		if err != nil {
			return value.Undefined(), err
		}
		callable, ok := goja.AssertFunction(jv)
		if !ok {
			return value.Undefined(), fmt.Errorf("%w: %s", ErrNotFunction, fn.Name())
		}
		return b.apply(callable, goja.Undefined(), args)
	})
	return v
}

// invokeReference backs value.Function.Call for engine functions.
func (b *Bridge) invokeReference(ref *value.Reference, args []value.Value) (value.Value, error) {
	return b.do("invoke", func() (value.Value, error) {
		obj, err := b.handles.resolve(ref)
		if err != nil {
			return value.Undefined(), err
		}
		fn, ok := goja.AssertFunction(obj)
		if !ok {
			return value.Undefined(), ErrNotFunction
		}
		return b.apply(fn, goja.Undefined(), args)
	})
}

func (b *Bridge) apply(fn goja.Callable, this goja.Value, args []value.Value) (value.Value, error) {
	jsArgs, err := b.toEngineArgs(args)
	if err != nil {
		return value.Undefined(), err
	}
	res, err := fn(this, jsArgs...)
	if err != nil {
		return value.Undefined(), err
	}
	return b.toHost(res)
}

// Execute evaluates source once and returns its completion value.
func (b *Bridge) Execute(source string) value.Value {
	return b.ExecuteNamed("", source)
}

// Evaluate is Execute, paired with GetGlobal for callers that want lookup
// and evaluation as separate operations.
func (b *Bridge) Evaluate(source string) value.Value {
	return b.Execute(source)
}

// ExecuteNamed is Execute with a script name used in stack traces.
func (b *Bridge) ExecuteNamed(name, source string) value.Value {
	v, _ := b.do("execute", func() (value.Value, error) {
		res, err := b.vm.RunScript(name, source)
		if err != nil {
			return value.Undefined(), err
		}
		return b.toHost(res)
	})
	return v
}

// LoadBundle reads r to the end and executes it as one script. A read
// failure is reported as UnableToLoad without touching the engine. Use of an
// undeclared name fails the load like any other evaluation error. A failed
// bundle leaves the engine usable.
func (b *Bridge) LoadBundle(r io.Reader) error {
	if b.State() != StateReady {
		return b.report("loadBundle", ErrReleased)
	}
	b.bundle.Store(int32(BundleLoading))

	src, err := io.ReadAll(r)
	if err != nil {
		b.bundle.Store(int32(BundleLoadFailed))
		return b.report("loadBundle", fmt.Errorf("%w: %w", ErrUnableToLoad, err))
	}

	_, err = b.doStrict("loadBundle", func() (value.Value, error) {
		_, err := b.vm.RunScript(b.opts.BundleName, string(src))
		return value.Undefined(), err
	})
	if err != nil {
		b.bundle.Store(int32(BundleLoadFailed))
		return err
	}
	b.bundle.Store(int32(BundleLoaded))
	b.log.Debug("bundle loaded", zap.String("name", b.opts.BundleName), zap.Int("bytes", len(src)))
	return nil
}
