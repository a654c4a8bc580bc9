// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/aplane-algo/scriptbridge/internal/value"
)

// handleTable keeps engine objects reachable while the host holds
// references to them. The maps are only touched on the dispatcher worker;
// alive may be read from any goroutine.
type handleTable struct {
	alive atomic.Bool
	byID  map[string]*goja.Object
	ids   map[*goja.Object]string
}

func newHandleTable() *handleTable {
	h := &handleTable{
		byID: make(map[string]*goja.Object),
		ids:  make(map[*goja.Object]string),
	}
	h.alive.Store(true)
	return h
}

// Alive implements value.Owner.
func (h *handleTable) Alive() bool {
	return h.alive.Load()
}

// put returns the reference for obj, issuing a new one on first sight.
func (h *handleTable) put(obj *goja.Object) *value.Reference {
	if id, ok := h.ids[obj]; ok {
		return value.NewReference(h, id)
	}
	id := uuid.New().String()
	h.byID[id] = obj
	h.ids[obj] = id
	return value.NewReference(h, id)
}

func (h *handleTable) resolve(r *value.Reference) (*goja.Object, error) {
	if r == nil || r.Owner() != value.Owner(h) {
		return nil, value.ErrForeignReference
	}
	if !h.Alive() {
		return nil, value.ErrReleasedReference
	}
	obj, ok := h.byID[r.ID()]
	if !ok {
		return nil, value.ErrReleasedReference
	}
	return obj, nil
}

func (h *handleTable) len() int {
	return len(h.byID)
}

// release invalidates every issued reference.
func (h *handleTable) release() {
	h.alive.Store(false)
}

// clear drops the engine objects once the table is dead.
func (h *handleTable) clear() {
	h.byID = make(map[string]*goja.Object)
	h.ids = make(map[*goja.Object]string)
}
