// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/aplane-algo/scriptbridge/internal/value"
)

// Console receives script console output on two channels.
type Console interface {
	Info(msg string)
	Error(msg string)
}

// zapConsole routes console output through the bridge logger.
type zapConsole struct {
	log *zap.Logger
}

func (c zapConsole) Info(msg string) {
	c.log.Info(msg, zap.String("source", "console"))
}

func (c zapConsole) Error(msg string) {
	c.log.Error(msg, zap.String("source", "console"))
}

// ConsoleFunc adapts two output functions to a Console.
type ConsoleFunc struct {
	InfoFn  func(string)
	ErrorFn func(string)
}

func (c ConsoleFunc) Info(msg string) {
	if c.InfoFn != nil {
		c.InfoFn(msg)
	}
}

func (c ConsoleFunc) Error(msg string) {
	if c.ErrorFn != nil {
		c.ErrorFn(msg)
	}
}

// installConsole registers the console global.
func (b *Bridge) installConsole() error {
	console := b.vm.NewObject()

	info := func(call goja.FunctionCall) goja.Value {
		b.console.Info(b.renderArgs(call.Arguments))
		return goja.Undefined()
	}
	errorFn := func(call goja.FunctionCall) goja.Value {
		b.console.Error(b.renderArgs(call.Arguments))
		return goja.Undefined()
	}

	for _, name := range []string{"log", "info", "debug"} {
		if err := console.Set(name, info); err != nil {
			return fmt.Errorf("failed to register console.%s: %w", name, err)
		}
	}
	for _, name := range []string{"warn", "error"} {
		if err := console.Set(name, errorFn); err != nil {
			return fmt.Errorf("failed to register console.%s: %w", name, err)
		}
	}

	if err := b.vm.Set("console", console); err != nil {
		return fmt.Errorf("failed to register console: %w", err)
	}
	return nil
}

func (b *Bridge) renderArgs(args []goja.Value) string {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = b.displayValue(a, true)
	}
	return renderConsole(vals)
}

// displayValue converts v for console output without issuing handles.
// Objects that would cross as references or functions become their
// placeholder text; below the top level only the kind of a container is kept.
func (b *Bridge) displayValue(v goja.Value, top bool) value.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return value.Undefined()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return primitive(v)
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return value.String("[function]")
	}

	switch {
	case obj.ClassName() == "Array":
		n, ok := denseLength(obj)
		if !ok {
			break
		}
		if !top {
			return value.Array()
		}
		elems := make([]value.Value, n)
		for i := 0; i < n; i++ {
			elems[i] = b.displayValue(obj.Get(strconv.Itoa(i)), false)
		}
		return value.Array(elems...)
	case b.isPlainObject(obj):
		if !top {
			return value.Object(nil)
		}
		keys := obj.Keys()
		fields := make(map[string]value.Value, len(keys))
		for _, k := range keys {
			fields[k] = b.displayValue(obj.Get(k), false)
		}
		return value.Object(fields)
	}
	return value.String("[reference]")
}

// renderConsole joins entries with commas. Arrays and objects are expanded
// one level deep; anything nested further is shown by kind.
func renderConsole(entries []value.Value) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = renderEntry(e)
	}
	return strings.Join(parts, ", ")
}

func renderEntry(v value.Value) string {
	switch v.Kind() {
	case value.KindArray:
		elems, _ := v.Elems()
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = renderScalar(e)
		}
		return strings.Join(parts, ",")
	case value.KindObject:
		fields, _ := v.Fields()
		keys := value.SortedKeys(fields)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + renderScalar(fields[k])
		}
		return strings.Join(parts, ",")
	}
	return renderScalar(v)
}

func renderScalar(v value.Value) string {
	switch v.Kind() {
	case value.KindUndefined:
		return "undefined"
	case value.KindString:
		s, _ := v.Str()
		return s
	case value.KindBool:
		x, _ := v.Bool()
		return strconv.FormatBool(x)
	case value.KindInt:
		i, _ := v.Int()
		return strconv.FormatInt(int64(i), 10)
	case value.KindDouble:
		d, _ := v.Double()
		return strconv.FormatFloat(d, 'g', -1, 64)
	case value.KindObject:
		return "[object]"
	case value.KindArray:
		return "[array]"
	case value.KindReference:
		return "[reference]"
	case value.KindFunction:
		return "[function]"
	}
	return ""
}
