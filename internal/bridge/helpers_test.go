// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// errorRecorder collects every error delivered to the handler.
type errorRecorder struct {
	mu   sync.Mutex
	errs []*Error
}

func (r *errorRecorder) handle(e *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func (r *errorRecorder) all() []*Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Error, len(r.errs))
	copy(out, r.errs)
	return out
}

func (r *errorRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = nil
}

// newTestBridge creates a bridge with a recording error handler that is
// released when the test ends.
func newTestBridge(t *testing.T, opts Options) (*Bridge, *errorRecorder) {
	t.Helper()
	rec := &errorRecorder{}
	opts.ErrorHandler = rec.handle
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	b, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := b.Release(); err != nil && !errors.Is(err, ErrReleased) {
			t.Errorf("Release: %v", err)
		}
	})
	return b, rec
}

// expectKinds fails unless the recorder saw exactly the given kinds, in order.
func expectKinds(t *testing.T, rec *errorRecorder, kinds ...ErrorKind) {
	t.Helper()
	got := rec.all()
	if len(got) != len(kinds) {
		t.Fatalf("handler saw %d errors %v, want %d %v", len(got), got, len(kinds), kinds)
	}
	for i, k := range kinds {
		if got[i].Kind != k {
			t.Errorf("error %d kind = %v (%v), want %v", i, got[i].Kind, got[i], k)
		}
	}
}
