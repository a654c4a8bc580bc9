// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package value

import (
	"errors"
	"fmt"
)

var (
	// ErrReleasedReference indicates a reference used after its engine was released
	ErrReleasedReference = errors.New("object reference used after engine release")

	// ErrForeignReference indicates a reference owned by a different engine instance
	ErrForeignReference = errors.New("object reference belongs to another engine")

	// ErrNotCallable indicates a Function without an implementation
	ErrNotCallable = errors.New("function has no implementation")
)

// Owner is the engine-side handle table a Reference belongs to.
type Owner interface {
	// Alive reports whether the owning engine instance is still usable.
	Alive() bool
}

// Reference is an opaque handle to a live engine-owned object.
// The host never copies the object behind it; the handle is only meaningful
// to the Owner that issued it and only while that Owner is alive.
type Reference struct {
	id    string
	owner Owner
}

// NewReference creates a handle. It is called by engine implementations only.
func NewReference(owner Owner, id string) *Reference {
	return &Reference{id: id, owner: owner}
}

// ID returns the handle identifier within its owner.
func (r *Reference) ID() string { return r.id }

// Owner returns the table that issued r.
func (r *Reference) Owner() Owner { return r.owner }

// Valid reports whether r can still be resolved by its owner.
func (r *Reference) Valid() bool {
	return r != nil && r.owner != nil && r.owner.Alive()
}

func (r *Reference) String() string {
	if r == nil {
		return "ref(nil)"
	}
	return fmt.Sprintf("ref(%s)", r.id)
}

// Callable is the Go signature of every function crossing the boundary.
type Callable func(args []Value) (Value, error)

// Function wraps either a host callable or an engine-native callable.
//
// Engine-native functions carry the Reference of the engine function object so
// that handing them back to the engine passes the original object, not a wrapper.
type Function struct {
	name string
	call Callable
	ref  *Reference
}

// NewFunction wraps a host callable.
func NewFunction(name string, fn Callable) *Function {
	return &Function{name: name, call: fn}
}

// NativeFunction wraps an engine function object. call must route the
// invocation through the engine's dispatcher.
func NativeFunction(name string, ref *Reference, call Callable) *Function {
	return &Function{name: name, call: call, ref: ref}
}

// Name returns the function name, possibly empty.
func (f *Function) Name() string { return f.name }

// Native returns the engine handle when f was produced by the engine.
func (f *Function) Native() (*Reference, bool) {
	return f.ref, f.ref != nil
}

// Call invokes f with args.
func (f *Function) Call(args ...Value) (Value, error) {
	if f == nil || f.call == nil {
		return Undefined(), ErrNotCallable
	}
	return f.call(args)
}
