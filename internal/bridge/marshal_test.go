// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"context"
	"math"
	"testing"

	"github.com/dop251/goja"

	"github.com/aplane-algo/scriptbridge/internal/value"
)

// onWorker runs fn on the bridge worker, failing the test on error.
func onWorker(t *testing.T, b *Bridge, fn func() error) {
	t.Helper()
	if err := b.disp.Run(context.Background(), fn); err != nil {
		t.Fatalf("worker: %v", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	tests := []struct {
		name string
		in   value.Value
	}{
		{"undefined", value.Undefined()},
		{"string", value.String("héllo")},
		{"empty string", value.String("")},
		{"true", value.Bool(true)},
		{"false", value.Bool(false)},
		{"int", value.Int(-42)},
		{"max int32", value.Int(math.MaxInt32)},
		{"double", value.Double(3.25)},
		{"integral double", value.Double(7)},
		{"large double", value.Double(1e15)},
		{"array", value.Array(value.Int(1), value.String("two"), value.Bool(true))},
		{"empty array", value.Array()},
		{"object", value.Object(map[string]value.Value{
			"name":  value.String("x"),
			"count": value.Int(3),
		})},
		{"nested", value.Object(map[string]value.Value{
			"list": value.Array(value.Object(map[string]value.Value{"k": value.Double(0.5)})),
			"none": value.Undefined(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got value.Value
			onWorker(t, b, func() error {
				jv, err := b.toEngine(tt.in)
				if err != nil {
					return err
				}
				got = b.fromEngine(jv)
				return nil
			})
			if !value.Equal(got, tt.in) {
				t.Errorf("round trip = %v, want %v", got, tt.in)
			}
		})
	}
}

func TestMarshalReferenceRoundTrip(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	onWorker(t, b, func() error {
		res, err := b.vm.RunString(`(function() { function Point(x) { this.x = x; } return new Point(1); })()`)
		if err != nil {
			return err
		}
		v := b.fromEngine(res)
		ref, ok := v.Reference()
		if !ok {
			t.Fatalf("class instance converted to %v, want reference", v.Kind())
		}

		jv, err := b.toEngine(v)
		if err != nil {
			return err
		}
		if !jv.SameAs(res) {
			t.Error("reference did not resolve to the original object")
		}
		again := b.fromEngine(jv)
		if !value.Equal(again, value.Ref(ref)) {
			t.Errorf("second conversion = %v, want %v", again, ref)
		}
		return nil
	})
}

func TestMarshalEngineValues(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	tests := []struct {
		name string
		src  string
		want value.Kind
	}{
		{"null", "null", value.KindUndefined},
		{"symbol", "Symbol('s')", value.KindUndefined},
		{"fraction", "1 / 4", value.KindDouble},
		{"integer", "6 * 7", value.KindInt},
		{"beyond int32", "Math.pow(2, 40)", value.KindDouble},
		{"array", "[1, [2]]", value.KindArray},
		{"literal", "({a: 1})", value.KindObject},
		{"null prototype", "Object.create(null)", value.KindObject},
		{"date", "new Date(0)", value.KindReference},
		{"map", "new Map()", value.KindReference},
		{"function", "(function f() {})", value.KindFunction},
		{"arrow", "(() => 1)", value.KindFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			onWorker(t, b, func() error {
				res, err := b.vm.RunString(tt.src)
				if err != nil {
					return err
				}
				if got := b.fromEngine(res).Kind(); got != tt.want {
					t.Errorf("fromEngine(%s).Kind() = %v, want %v", tt.src, got, tt.want)
				}
				return nil
			})
		})
	}
}

func TestMarshalLargeOrSparseArraysStayInEngine(t *testing.T) {
	b, rec := newTestBridge(t, Options{})

	tests := []struct {
		name string
		src  string
		want value.Kind
	}{
		{"dense", "[1, 2, 3]", value.KindArray},
		{"hole", "[1, , 3]", value.KindReference},
		{"sparse", "var a = []; a[20000000] = 1; a", value.KindReference},
		{"max index", "var big = []; big[4294967294] = 1; big", value.KindReference},
		{"long", "new Array(2000000).fill(0)", value.KindReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Execute(tt.src).Kind(); got != tt.want {
				t.Errorf("Execute(%s).Kind() = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
	expectKinds(t, rec)

	b.Execute("var sparse = []; sparse[4294967294] = 'last'")
	ref, err := b.GetReference("sparse")
	if err != nil {
		t.Fatalf("GetReference: %v", err)
	}
	if got := b.CallMethod(ref, "pop"); !value.Equal(got, value.String("last")) {
		t.Errorf("sparse.pop() = %v, want last", got)
	}
}

func TestMarshalCycleBecomesReference(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	onWorker(t, b, func() error {
		res, err := b.vm.RunString(`var a = {name: "a"}; a.self = a; a`)
		if err != nil {
			return err
		}
		v := b.fromEngine(res)
		if v.Kind() != value.KindObject {
			t.Fatalf("kind = %v, want object", v.Kind())
		}
		self := v.Get("self")
		ref, ok := self.Reference()
		if !ok {
			t.Fatalf("self = %v, want reference", self)
		}
		obj, err := b.handles.resolve(ref)
		if err != nil {
			return err
		}
		if !obj.SameAs(res) {
			t.Error("cycle reference does not point at the original object")
		}
		return nil
	})
}

func TestMarshalDeduplicatesHandles(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	onWorker(t, b, func() error {
		res, err := b.vm.RunString(`var m = new Map(); [m, m]`)
		if err != nil {
			return err
		}
		before := b.handles.len()
		v := b.fromEngine(res)
		if !value.Equal(v.Index(0), v.Index(1)) {
			t.Error("same engine object produced different references")
		}
		if added := b.handles.len() - before; added != 1 {
			t.Errorf("handles added = %d, want 1", added)
		}
		return nil
	})
}

func TestMarshalHostFunction(t *testing.T) {
	b, _ := newTestBridge(t, Options{})

	double := value.NewFunction("double", func(args []value.Value) (value.Value, error) {
		f, _ := args[0].Float()
		return value.Number(f * 2), nil
	})

	onWorker(t, b, func() error {
		jv, err := b.toEngine(value.Func(double))
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(jv)
		if !ok {
			t.Fatal("host function is not callable in the engine")
		}
		res, err := fn(goja.Undefined(), b.vm.ToValue(21))
		if err != nil {
			return err
		}
		if got := b.fromEngine(res); !value.Equal(got, value.Int(42)) {
			t.Errorf("double(21) = %v, want 42", got)
		}
		return nil
	})
}

func TestRenderConsole(t *testing.T) {
	tests := []struct {
		name    string
		entries []value.Value
		want    string
	}{
		{"scalars", []value.Value{value.String("a"), value.Int(1), value.Bool(false)}, "a, 1, false"},
		{"array", []value.Value{value.Array(value.Int(1), value.Int(2))}, "1,2"},
		{
			"object sorted",
			[]value.Value{value.Object(map[string]value.Value{"b": value.Int(2), "a": value.String("x")})},
			"a=x,b=2",
		},
		{
			"nested beyond one level",
			[]value.Value{value.Array(value.Array(value.Int(1)), value.Object(nil))},
			"[array],[object]",
		},
		{"undefined", []value.Value{value.Undefined()}, "undefined"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderConsole(tt.entries); got != tt.want {
				t.Errorf("renderConsole = %q, want %q", got, tt.want)
			}
		})
	}
}
