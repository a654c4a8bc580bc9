// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/aplane-algo/scriptbridge/internal/dispatch"
	"github.com/aplane-algo/scriptbridge/internal/value"
	"github.com/aplane-algo/scriptbridge/internal/version"
)

// DefaultGlobalName is the name of the bridge object installed in the engine.
const DefaultGlobalName = "bridge"

// DefaultBundleName is the script name used for loaded bundles in stack traces.
const DefaultBundleName = "bundle.js"

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// BundleState is the lifecycle of the bundle loaded into the engine.
type BundleState int32

const (
	BundleNotLoaded BundleState = iota
	BundleLoading
	BundleLoaded
	BundleLoadFailed
)

func (s BundleState) String() string {
	switch s {
	case BundleNotLoaded:
		return "not loaded"
	case BundleLoading:
		return "loading"
	case BundleLoaded:
		return "loaded"
	case BundleLoadFailed:
		return "load failed"
	}
	return fmt.Sprintf("BundleState(%d)", int32(s))
}

// Options configures a Bridge.
type Options struct {
	// Timeout bounds every blocking operation. Zero means 120 seconds.
	Timeout time.Duration

	// QueueSize bounds the number of operations waiting for the engine.
	QueueSize int

	// InterruptOnTimeout interrupts a unit of work whose caller timed out.
	// When false a timeout only abandons the wait.
	InterruptOnTimeout bool

	// GlobalName names the bridge object installed in the engine.
	GlobalName string

	// BundleName is the script name given to loaded bundles.
	BundleName string

	// Logger receives lifecycle and failure logs. Nil means no logging.
	Logger *zap.Logger

	// Console receives console.* output. Nil routes it to Logger.
	Console Console

	// ErrorHandler is registered before the engine starts.
	ErrorHandler ErrorHandler
}

// Bridge owns one engine instance and serializes all access to it.
type Bridge struct {
	opts    Options
	log     *zap.Logger
	console Console

	disp    *dispatch.Dispatcher
	vm      *goja.Runtime
	handles *handleTable

	objectProto    *goja.Object
	referenceProto *goja.Object

	state   atomic.Int32
	bundle  atomic.Int32
	handler atomic.Pointer[ErrorHandler]
}

// New creates the engine on its own worker and fully initializes it.
// A failure during setup releases everything and returns ErrInitFailed.
func New(opts Options) (*Bridge, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = dispatch.DefaultTimeout
	}
	if opts.GlobalName == "" {
		opts.GlobalName = DefaultGlobalName
	}
	if opts.BundleName == "" {
		opts.BundleName = DefaultBundleName
	}

	b := &Bridge{
		opts:    opts,
		log:     opts.Logger,
		console: opts.Console,
		handles: newHandleTable(),
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.console == nil {
		b.console = zapConsole{log: b.log}
	}
	b.SetErrorHandler(opts.ErrorHandler)

	b.disp = dispatch.New(dispatch.Options{
		Timeout:    opts.Timeout,
		QueueSize:  opts.QueueSize,
		BeforeEach: b.beforeUnit,
		OnTimeout:  b.onTimeout,
	})

	b.state.Store(int32(StateInitializing))
	b.log.Debug("creating engine", zap.Duration("timeout", opts.Timeout))

	if err := b.disp.Run(context.Background(), b.create); err != nil {
		b.state.Store(int32(StateReleased))
		b.handles.release()
		_ = b.disp.Close()
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	b.state.Store(int32(StateReady))
	b.log.Debug("engine ready")
	return b, nil
}

// create runs on the worker.
func (b *Bridge) create() error {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	b.vm = vm
	b.objectProto = vm.NewObject().Prototype()

	ctor, ok := vm.Get("ReferenceError").(*goja.Object)
	if !ok {
		return errors.New("engine has no ReferenceError constructor")
	}
	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok {
		return errors.New("engine has no ReferenceError prototype")
	}
	b.referenceProto = proto

	if err := b.installConsole(); err != nil {
		return err
	}
	if err := b.installGlobal(); err != nil {
		return err
	}
	return nil
}

// installGlobal registers the bridge object scripts use to reach the host.
func (b *Bridge) installGlobal() error {
	global := b.vm.NewObject()
	if err := global.Set("version", version.Version); err != nil {
		return fmt.Errorf("failed to register %s.version: %w", b.opts.GlobalName, err)
	}
	if err := global.Set("engine", "goja"); err != nil {
		return fmt.Errorf("failed to register %s.engine: %w", b.opts.GlobalName, err)
	}
	if err := b.vm.Set(b.opts.GlobalName, global); err != nil {
		return fmt.Errorf("failed to register %s: %w", b.opts.GlobalName, err)
	}
	return nil
}

func (b *Bridge) beforeUnit() {
	if b.opts.InterruptOnTimeout && b.vm != nil {
		b.vm.ClearInterrupt()
	}
}

func (b *Bridge) onTimeout() {
	b.log.Warn("engine operation timed out", zap.Duration("timeout", b.opts.Timeout))
	if b.opts.InterruptOnTimeout && b.vm != nil {
		b.vm.Interrupt(dispatch.ErrTimeout)
	}
}

// Release tears the engine down. Every ObjectReference issued by this bridge
// becomes invalid and every later operation fails with ErrReleased.
// Release must be called exactly once; a second call returns ErrReleased.
func (b *Bridge) Release() error {
	if !b.state.CompareAndSwap(int32(StateReady), int32(StateReleased)) {
		return ErrReleased
	}
	b.handles.release()

	err := b.disp.Run(context.Background(), func() error {
		b.handles.clear()
		return nil
	})
	if closeErr := b.disp.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	b.log.Debug("engine released")
	return err
}

// State reports the engine lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// BundleState reports the bundle lifecycle state.
func (b *Bridge) BundleState() BundleState {
	return BundleState(b.bundle.Load())
}

// SetErrorHandler replaces the error handler; nil removes it.
// Register before issuing operations: a handler swapped during an operation
// may or may not see that operation's failure.
func (b *Bridge) SetErrorHandler(h ErrorHandler) {
	if h == nil {
		b.handler.Store(nil)
		return
	}
	b.handler.Store(&h)
}

// do runs fn on the worker. Engine failures are classified on the worker,
// then reported on the calling goroutine. A reference fault is not a failure
// here: the operation yields Undefined.
func (b *Bridge) do(op string, fn func() (value.Value, error)) (value.Value, error) {
	return b.run(op, true, fn)
}

// doStrict is do for operations where a reference fault is a failure.
func (b *Bridge) doStrict(op string, fn func() (value.Value, error)) (value.Value, error) {
	return b.run(op, false, fn)
}

func (b *Bridge) run(op string, allowRefFault bool, fn func() (value.Value, error)) (value.Value, error) {
	if b.State() != StateReady {
		return value.Undefined(), b.report(op, ErrReleased)
	}

	v, err := dispatch.Call(context.Background(), b.disp, func() (value.Value, error) {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if allowRefFault && b.isReferenceFault(err) {
			b.log.Debug("reference fault treated as undefined", zap.String("op", op))
			return value.Undefined(), nil
		}
		return value.Undefined(), classify(err)
	})
	if err != nil {
		return value.Undefined(), b.report(op, err)
	}
	return v, nil
}
