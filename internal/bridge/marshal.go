// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/dop251/goja"

	"github.com/aplane-algo/scriptbridge/internal/value"
)

var plainObjectType = reflect.TypeOf(map[string]interface{}(nil))

// maxArrayLen bounds the arrays copied to the host. Longer or sparse arrays
// stay in the engine behind a reference.
const maxArrayLen = 1 << 20

// The marshaller runs on the dispatcher worker only.

// toEngine converts a host value into an engine value. Objects and arrays are
// copied deeply; references and engine-native functions resolve to the
// original engine objects.
func (b *Bridge) toEngine(v value.Value) (goja.Value, error) {
	switch v.Kind() {
	case value.KindUndefined:
		return goja.Undefined(), nil
	case value.KindString:
		s, _ := v.Str()
		return b.vm.ToValue(s), nil
	case value.KindBool:
		x, _ := v.Bool()
		return b.vm.ToValue(x), nil
	case value.KindInt:
		i, _ := v.Int()
		return b.vm.ToValue(int64(i)), nil
	case value.KindDouble:
		d, _ := v.Double()
		return b.vm.ToValue(d), nil
	case value.KindObject:
		fields, _ := v.Fields()
		obj := b.vm.NewObject()
		for _, k := range value.SortedKeys(fields) {
			jv, err := b.toEngine(fields[k])
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", k, err)
			}
			if err := obj.Set(k, jv); err != nil {
				return nil, fmt.Errorf("failed to set member %q: %w", k, err)
			}
		}
		return obj, nil
	case value.KindArray:
		elems, _ := v.Elems()
		items := make([]interface{}, len(elems))
		for i, e := range elems {
			jv, err := b.toEngine(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			items[i] = jv
		}
		return b.vm.NewArray(items...), nil
	case value.KindReference:
		ref, _ := v.Reference()
		return b.handles.resolve(ref)
	case value.KindFunction:
		fn, _ := v.Function()
		if ref, ok := fn.Native(); ok {
			return b.handles.resolve(ref)
		}
		return b.wrapHostFunction(fn), nil
	}
	return nil, fmt.Errorf("unsupported value kind %v", v.Kind())
}

// wrapHostFunction produces an engine function that invokes fn synchronously
// on the worker. Host errors surface in the engine as thrown GoErrors.
func (b *Bridge) wrapHostFunction(fn *value.Function) goja.Value {
	return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]value.Value, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = b.fromEngine(a)
		}
		res, err := fn.Call(args...)
		if err != nil {
			panic(b.vm.NewGoError(err))
		}
		out, err := b.toEngine(res)
		if err != nil {
			panic(b.vm.NewGoError(err))
		}
		return out
	})
}

// fromEngine converts an engine value into a host value. Unsupported engine
// types become Undefined. Getters may run script code, so outside an engine
// call use toHost, which turns a throwing getter into an error.
func (b *Bridge) fromEngine(v goja.Value) value.Value {
	return b.convert(v, make(map[*goja.Object]bool))
}

// toHost is fromEngine for results read from Go after the engine returned.
func (b *Bridge) toHost(v goja.Value) (out value.Value, err error) {
	if ex := b.vm.Try(func() { out = b.fromEngine(v) }); ex != nil {
		return value.Undefined(), ex
	}
	return out, nil
}

func (b *Bridge) convert(v goja.Value, path map[*goja.Object]bool) value.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return value.Undefined()
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return primitive(v)
	}

	if _, ok := goja.AssertFunction(obj); ok {
		return b.nativeFunction(obj)
	}

	// An object already being converted closes a cycle; keep it live.
	if path[obj] {
		return value.Ref(b.handles.put(obj))
	}

	switch {
	case obj.ClassName() == "Array":
		n, ok := denseLength(obj)
		if !ok {
			return value.Ref(b.handles.put(obj))
		}
		path[obj] = true
		defer delete(path, obj)
		elems := make([]value.Value, n)
		for i := 0; i < n; i++ {
			elems[i] = b.convert(obj.Get(strconv.Itoa(i)), path)
		}
		return value.Array(elems...)
	case b.isPlainObject(obj):
		path[obj] = true
		defer delete(path, obj)
		keys := obj.Keys()
		fields := make(map[string]value.Value, len(keys))
		for _, k := range keys {
			fields[k] = b.convert(obj.Get(k), path)
		}
		return value.Object(fields)
	}
	return value.Ref(b.handles.put(obj))
}

// denseLength returns the length of arr when it is small enough to copy and
// has no holes.
func denseLength(arr *goja.Object) (int, bool) {
	n := arr.Get("length").ToInteger()
	if n < 0 || n > maxArrayLen {
		return 0, false
	}
	if int64(len(arr.Keys())) < n {
		return 0, false
	}
	return int(n), true
}

// isPlainObject reports whether obj is an object literal (or Object.create(null))
// rather than a class instance, builtin or wrapped host value.
func (b *Bridge) isPlainObject(obj *goja.Object) bool {
	if obj.ClassName() != "Object" || obj.ExportType() != plainObjectType {
		return false
	}
	proto := obj.Prototype()
	return proto == nil || proto.SameAs(b.objectProto)
}

func (b *Bridge) nativeFunction(obj *goja.Object) value.Value {
	ref := b.handles.put(obj)
	name := ""
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	return value.Func(value.NativeFunction(name, ref, func(args []value.Value) (value.Value, error) {
		return b.invokeReference(ref, args)
	}))
}

func primitive(v goja.Value) value.Value {
	if _, ok := v.(*goja.Symbol); ok {
		return value.Undefined()
	}
	switch x := v.Export().(type) {
	case string:
		return value.String(x)
	case bool:
		return value.Bool(x)
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return value.Int(int32(x))
		}
		return value.Double(float64(x))
	case float64:
		return value.Number(x)
	}
	return value.Undefined()
}

// toEngineArgs converts call arguments in order.
func (b *Bridge) toEngineArgs(args []value.Value) ([]goja.Value, error) {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		jv, err := b.toEngine(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = jv
	}
	return out, nil
}
