// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package value

import (
	"sort"
	"strconv"
	"strings"
)

// Equal reports whether a and b are observationally equal.
// Int and Double compare numerically; objects and arrays compare deeply;
// references compare by owner and id; functions by identity.
func Equal(a, b Value) bool {
	if af, ok := a.Float(); ok {
		bf, ok := b.Float()
		return ok && af == bf
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined:
		return true
	case KindString:
		return a.str == b.str
	case KindBool:
		return a.b == b.b
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindReference:
		return a.ref.owner == b.ref.owner && a.ref.id == b.ref.id
	case KindFunction:
		if a.fn == b.fn {
			return true
		}
		ar, aok := a.fn.Native()
		br, bok := b.fn.Native()
		return aok && bok && ar.owner == br.owner && ar.id == br.id
	}
	return false
}

// String renders v for diagnostics. Object members are sorted by name.
func (v Value) String() string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v Value) {
	switch v.kind {
	case KindUndefined:
		b.WriteString("undefined")
	case KindString:
		b.WriteString(strconv.Quote(v.str))
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		b.WriteString(strconv.FormatInt(int64(v.i), 10))
	case KindDouble:
		b.WriteString(strconv.FormatFloat(v.d, 'g', -1, 64))
	case KindObject:
		b.WriteByte('{')
		for i, k := range SortedKeys(v.obj) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			writeValue(b, v.obj[k])
		}
		b.WriteByte('}')
	case KindArray:
		b.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	case KindReference:
		b.WriteString(v.ref.String())
	case KindFunction:
		b.WriteString("function ")
		b.WriteString(v.fn.name)
		b.WriteString("()")
	}
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
