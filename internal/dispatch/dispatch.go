// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package dispatch serializes work onto a single dedicated goroutine.
//
// Every unit of work submitted to a Dispatcher runs on the same worker
// goroutine, in submission order, to completion before the next one starts.
// Callers block until their unit finishes or the wait bound elapses. A timed
// out unit is not cancelled; its result is discarded when it eventually ends.
//
// Units that are already running on the worker (for example a host callback
// invoked synchronously by the engine) may submit further work; such nested
// submissions execute inline instead of being queued.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
)

// DefaultTimeout bounds how long a caller waits for a unit of work.
const DefaultTimeout = 120 * time.Second

// DefaultQueueSize is the number of units that may wait behind the running one
// before Do blocks on submission.
const DefaultQueueSize = 64

var (
	// ErrTimeout indicates the caller stopped waiting for a unit of work
	ErrTimeout = errors.New("dispatch: timed out waiting for unit of work")

	// ErrClosed indicates the dispatcher no longer accepts work
	ErrClosed = errors.New("dispatch: dispatcher closed")

	// ErrPanic indicates a unit of work panicked
	ErrPanic = errors.New("dispatch: unit of work panicked")
)

// Unit is a unit of work. Its result is returned to the submitting caller.
type Unit func() (any, error)

type result struct {
	val any
	err error
}

type task struct {
	fn   Unit
	done chan result // buffered: a late result never blocks the worker
}

// Options configures a Dispatcher.
type Options struct {
	// Timeout bounds each caller's wait. Zero means DefaultTimeout.
	Timeout time.Duration

	// QueueSize is the capacity of the pending queue. Zero means DefaultQueueSize.
	QueueSize int

	// BeforeEach runs on the worker before every queued unit.
	BeforeEach func()

	// OnTimeout runs on the caller's goroutine when a wait expires while the
	// abandoned unit is still executing. The worker cannot move on to the
	// next unit until OnTimeout returns.
	OnTimeout func()
}

// Dispatcher owns one worker goroutine.
type Dispatcher struct {
	opts    Options
	tasks   chan *task
	quit    chan struct{}
	stopped chan struct{}

	mu      sync.RWMutex // guards closed
	closed  bool
	runMu   sync.Mutex // guards running
	running *task

	workerID atomic.Int64
	started  chan struct{}
}

// New starts a dispatcher and its worker goroutine.
func New(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	d := &Dispatcher{
		opts:    opts,
		tasks:   make(chan *task, opts.QueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		started: make(chan struct{}),
	}
	go d.loop()
	<-d.started
	return d
}

// Timeout returns the configured wait bound.
func (d *Dispatcher) Timeout() time.Duration {
	return d.opts.Timeout
}

// OnWorker reports whether the calling goroutine is the worker.
func (d *Dispatcher) OnWorker() bool {
	return goid.Get() == d.workerID.Load()
}

func (d *Dispatcher) loop() {
	d.workerID.Store(goid.Get())
	close(d.started)
	defer close(d.stopped)

	for {
		select {
		case <-d.quit:
			d.drain()
			return
		default:
		}

		select {
		case t := <-d.tasks:
			d.exec(t)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain fails every unit still queued at shutdown.
func (d *Dispatcher) drain() {
	for {
		select {
		case t := <-d.tasks:
			t.done <- result{err: ErrClosed}
		default:
			return
		}
	}
}

func (d *Dispatcher) exec(t *task) {
	d.runMu.Lock()
	d.running = t
	d.runMu.Unlock()

	if d.opts.BeforeEach != nil {
		d.opts.BeforeEach()
	}

	val, err := runProtected(t.fn)

	d.runMu.Lock()
	d.running = nil
	d.runMu.Unlock()

	t.done <- result{val: val, err: err}
}

// runProtected converts a panic inside fn into an ErrPanic error.
func runProtected(fn Unit) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn()
}

// Do runs fn on the worker and waits for its result.
// The wait ends at the earlier of the dispatcher timeout and ctx's deadline.
func (d *Dispatcher) Do(ctx context.Context, fn Unit) (any, error) {
	if d.OnWorker() {
		return runProtected(fn)
	}

	timer := time.NewTimer(d.opts.Timeout)
	defer timer.Stop()

	t := &task{fn: fn, done: make(chan result, 1)}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case d.tasks <- t:
	case <-timer.C:
		d.mu.RUnlock()
		return nil, fmt.Errorf("%w: queue full for %s", ErrTimeout, d.opts.Timeout)
	case <-ctx.Done():
		d.mu.RUnlock()
		return nil, ctx.Err()
	}
	d.mu.RUnlock()

	select {
	case r := <-t.done:
		return r.val, r.err
	case <-timer.C:
		d.abandon(t)
		return nil, fmt.Errorf("%w after %s", ErrTimeout, d.opts.Timeout)
	case <-ctx.Done():
		d.abandon(t)
		return nil, ctx.Err()
	}
}

// abandon fires OnTimeout if t is still the running unit.
func (d *Dispatcher) abandon(t *task) {
	if d.opts.OnTimeout == nil {
		return
	}
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running == t {
		d.opts.OnTimeout()
	}
}

// Run is Do for units without a result.
func (d *Dispatcher) Run(ctx context.Context, fn func() error) error {
	_, err := d.Do(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// Call runs fn on d's worker and returns its typed result.
func Call[T any](ctx context.Context, d *Dispatcher, fn func() (T, error)) (T, error) {
	v, err := d.Do(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Close stops accepting work, fails queued units with ErrClosed and waits
// for the worker to exit, at most for the dispatcher timeout. Closing from
// the worker itself does not wait.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	close(d.quit)
	if d.OnWorker() {
		return nil
	}

	timer := time.NewTimer(d.opts.Timeout)
	defer timer.Stop()
	select {
	case <-d.stopped:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: worker still busy at close", ErrTimeout)
	}
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
