// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package value defines the values that cross the boundary between host code
// and the embedded script engine.
//
// Value is a closed tagged union. Consumers switch over Kind exhaustively;
// new variants are added by extending Kind and every switch that reads it.
package value

import (
	"math"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindString
	KindBool
	KindInt
	KindDouble
	KindObject
	KindArray
	KindReference
	KindFunction
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindString:    "string",
	KindBool:      "bool",
	KindInt:       "int",
	KindDouble:    "double",
	KindObject:    "object",
	KindArray:     "array",
	KindReference: "reference",
	KindFunction:  "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Value is a self-describing value. The zero Value is Undefined.
type Value struct {
	kind Kind
	str  string
	b    bool
	i    int32
	d    float64
	obj  map[string]Value
	arr  []Value
	ref  *Reference
	fn   *Function
}

// Undefined returns the absent value.
func Undefined() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a 32-bit integer value.
func Int(i int32) Value { return Value{kind: KindInt, i: i} }

// Double returns a floating point value.
func Double(d float64) Value { return Value{kind: KindDouble, d: d} }

// Object returns an object value holding a copy of fields.
func Object(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindObject, obj: cp}
}

// Array returns an array value holding a copy of elems.
func Array(elems ...Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: KindArray, arr: cp}
}

// Ref wraps an engine-owned object handle. A nil reference yields Undefined.
func Ref(r *Reference) Value {
	if r == nil {
		return Undefined()
	}
	return Value{kind: KindReference, ref: r}
}

// Func wraps a callable. A nil function yields Undefined.
func Func(f *Function) Value {
	if f == nil {
		return Undefined()
	}
	return Value{kind: KindFunction, fn: f}
}

// Number returns Int when n is integral and fits in 32 bits, Double otherwise.
// This is the only implicit numeric widening the model allows.
func Number(n float64) Value {
	if n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 && !(n == 0 && math.Signbit(n)) {
		return Int(int32(n))
	}
	return Double(n)
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether v is Undefined.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// Str returns the string held by v.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the integer held by v.
func (v Value) Int() (int32, bool) { return v.i, v.kind == KindInt }

// Double returns the float held by v.
func (v Value) Double() (float64, bool) { return v.d, v.kind == KindDouble }

// Float returns v as a float64 for either numeric variant.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindDouble:
		return v.d, true
	}
	return 0, false
}

// Fields returns the members of an object value. The map must not be modified.
func (v Value) Fields() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

// Elems returns the elements of an array value. The slice must not be modified.
func (v Value) Elems() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Reference returns the handle held by v.
func (v Value) Reference() (*Reference, bool) { return v.ref, v.kind == KindReference }

// Function returns the callable held by v.
func (v Value) Function() (*Function, bool) { return v.fn, v.kind == KindFunction }

// Get returns the named member of an object value, or Undefined.
func (v Value) Get(name string) Value {
	if v.kind != KindObject {
		return Undefined()
	}
	return v.obj[name]
}

// Index returns the i-th element of an array value, or Undefined.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Undefined()
	}
	return v.arr[i]
}

// Len returns the number of elements or members, 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	}
	return 0
}
