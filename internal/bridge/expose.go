// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"

	"github.com/aplane-algo/scriptbridge/internal/value"
)

// Constructible is implemented by host classes that take constructor
// arguments. Construct runs on a fresh instance for every `new` in script.
type Constructible interface {
	Construct(args []value.Value) error
}

// ExposeValue binds an arbitrary host value as the global key. Structs,
// maps, slices and funcs are wrapped so scripts see their exported members,
// named by their json tag or with a lowercased first letter.
func (b *Bridge) ExposeValue(key string, host any) error {
	_, err := b.do("exposeValue", func() (value.Value, error) {
		switch v := host.(type) {
		case value.Value:
			jv, err := b.toEngine(v)
			if err != nil {
				return value.Undefined(), err
			}
			return value.Undefined(), b.vm.Set(key, jv)
		case *value.Function:
			return value.Undefined(), b.vm.Set(key, b.wrapHostFunction(v))
		}
		return value.Undefined(), b.vm.Set(key, host)
	})
	return err
}

// ExposeClass makes the struct type of hostClass constructible in script as
// `new className(...)`. hostClass may be a struct value or a pointer to one;
// only its type is used.
func (b *Bridge) ExposeClass(hostClass any, className string) error {
	t := reflect.TypeOf(hostClass)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return b.report("exposeClass", fmt.Errorf("%w: %T", ErrNotConstructible, hostClass))
	}

	_, err := b.do("exposeClass", func() (value.Value, error) {
		ctor := func(call goja.ConstructorCall) *goja.Object {
			inst := reflect.New(t).Interface()
			if c, ok := inst.(Constructible); ok {
				args := make([]value.Value, len(call.Arguments))
				for i, a := range call.Arguments {
					args[i] = b.fromEngine(a)
				}
				if err := c.Construct(args); err != nil {
					panic(b.vm.NewGoError(err))
				}
			}
			obj := b.vm.ToValue(inst).(*goja.Object)
			if err := obj.SetPrototype(call.This.Prototype()); err != nil {
				panic(b.vm.NewGoError(err))
			}
			return obj
		}
		return value.Undefined(), b.vm.Set(className, ctor)
	})
	return err
}

// ExposeFunction binds fn as the global function name.
func (b *Bridge) ExposeFunction(fn *value.Function, name string) error {
	_, err := b.do("exposeFunction", func() (value.Value, error) {
		jv, err := b.toEngine(value.Func(fn))
		if err != nil {
			return value.Undefined(), err
		}
		return value.Undefined(), b.vm.Set(name, jv)
	})
	return err
}

// Extend adds fn as member functionName of the global object objectName.
// An absent global is created as an empty object first. A global holding
// anything other than an object is left untouched and reported as an
// EvaluationError.
func (b *Bridge) Extend(objectName string, fn *value.Function, functionName string) error {
	_, err := b.do("extend", func() (value.Value, error) {
		g, err := b.lookup(objectName)
		if err != nil {
			return value.Undefined(), err
		}

		var obj *goja.Object
		switch {
		case g == nil || goja.IsUndefined(g):
			obj = b.vm.NewObject()
		default:
			o, ok := g.(*goja.Object)
			if !ok {
				return value.Undefined(), fmt.Errorf("%w: %s holds %s", ErrNotObject, objectName, g.String())
			}
			obj = o
		}

		jv, err := b.toEngine(value.Func(fn))
		if err != nil {
			return value.Undefined(), err
		}
		if err := obj.Set(functionName, jv); err != nil {
			return value.Undefined(), err
		}
		if g == nil || goja.IsUndefined(g) {
			return value.Undefined(), b.vm.Set(objectName, obj)
		}
		return value.Undefined(), nil
	})
	return err
}
