// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bundle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses bursts of filesystem events into one check.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports bundles newer than the one currently installed.
type Watcher struct {
	dir      *Dir
	current  uint64
	debounce time.Duration
	log      *zap.Logger
	onNewer  func(*File)
}

// NewWatcher returns a watcher over dir that calls onNewer, from the Run
// goroutine, whenever a bundle with a version above current appears.
func NewWatcher(dir *Dir, current uint64, debounce time.Duration, log *zap.Logger, onNewer func(*File)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{dir: dir, current: current, debounce: debounce, log: log, onNewer: onNewer}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir.Path()); err != nil {
		return fmt.Errorf("failed to watch bundle directory: %w", err)
	}
	w.log.Debug("watching bundle directory", zap.String("dir", w.dir.Path()), zap.Uint64("current", w.current))

	// Debounce timer to avoid checking mid-copy
	var debounceTimer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !IsBundleName(name) && name != ChecksumsFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.check()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

// check offers the latest bundle when it supersedes the current one.
func (w *Watcher) check() {
	latest, err := w.dir.Latest()
	if err != nil {
		if !errors.Is(err, ErrNoBundle) {
			w.log.Warn("failed to scan bundle directory", zap.Error(err))
		}
		return
	}
	if latest.Version() <= w.current {
		return
	}
	w.log.Info("newer bundle available",
		zap.String("name", latest.Name()), zap.Uint64("version", latest.Version()), zap.Uint64("previous", w.current))
	w.current = latest.Version()
	w.onNewer(latest)
}
