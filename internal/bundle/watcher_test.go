// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bundle

import (
	"context"
	"testing"
	"time"
)

func TestWatcherReportsNewerBundles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bundle-1.js", "v1")

	found := make(chan uint64, 4)
	w := NewWatcher(NewDir(dir, false), 1, 20*time.Millisecond, nil, func(f *File) {
		found <- f.Version()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	// Give the watcher time to register before producing events.
	time.Sleep(50 * time.Millisecond)

	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "bundle-1.js", "v1 rewritten")
	select {
	case v := <-found:
		t.Fatalf("reported version %d without a newer bundle", v)
	case <-time.After(200 * time.Millisecond):
	}

	writeFile(t, dir, "bundle-3.js", "v3")
	select {
	case v := <-found:
		if v != 3 {
			t.Errorf("reported version %d, want 3", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("newer bundle not reported")
	}

	writeFile(t, dir, "bundle-2.js", "v2")
	select {
	case v := <-found:
		t.Errorf("reported older version %d", v)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := NewWatcher(NewDir(t.TempDir()+"/absent", false), 0, 0, nil, func(*File) {})
	if err := w.Run(context.Background()); err == nil {
		t.Error("Run on a missing directory succeeded")
	}
}
