// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/aplane-algo/scriptbridge/internal/bridge"
	"github.com/aplane-algo/scriptbridge/internal/bundle"
	"github.com/aplane-algo/scriptbridge/internal/config"
	"github.com/aplane-algo/scriptbridge/internal/logging"
)

// session is one configured bridge plus the bundle it was provisioned with.
type session struct {
	cfg    config.Config
	log    *zap.Logger
	out    io.Writer
	styles styles

	mu        sync.Mutex
	bridge    *bridge.Bridge
	installed *bundle.Installed
	failures  []*bridge.Error
}

// loadConfig resolves and loads the config file, then builds and installs
// the process logger.
func loadConfig(flags *globalFlags) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(config.ResolvePath(flags.configPath))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if flags.debug {
		cfg.Log.Level = "debug"
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	logging.Set(log)
	return cfg, log, nil
}

// openSession loads configuration, starts a bridge and installs the
// configured bundle, if any.
func openSession(flags *globalFlags, out, errOut io.Writer) (*session, error) {
	cfg, log, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log, out: out, styles: newStyles(errOut)}
	b, err := s.newBridge(errOut)
	if err != nil {
		return nil, err
	}
	s.bridge = b

	if cfg.HasBundles() {
		rec, err := s.provisioner().Install(b)
		if err != nil {
			_ = b.Release()
			return nil, fmt.Errorf("failed to install bundle: %w", err)
		}
		s.installed = &rec
		// Candidates that failed before rec loaded were already printed.
		s.takeFailures()
	}
	return s, nil
}

// newBridge starts an engine configured from the session settings. Console
// output goes to out; classified failures are printed to errOut and kept.
func (s *session) newBridge(errOut io.Writer) (*bridge.Bridge, error) {
	return bridge.New(bridge.Options{
		Timeout:            s.cfg.Timeout.Duration,
		QueueSize:          s.cfg.QueueSize,
		InterruptOnTimeout: s.cfg.InterruptOnTimeout,
		GlobalName:         s.cfg.BridgeGlobal,
		Logger:             s.log.Named("bridge"),
		Console: bridge.ConsoleFunc{
			InfoFn:  func(msg string) { fmt.Fprintln(s.out, msg) },
			ErrorFn: func(msg string) { fmt.Fprintln(errOut, s.styles.Error(msg)) },
		},
		ErrorHandler: func(e *bridge.Error) {
			s.mu.Lock()
			s.failures = append(s.failures, e)
			s.mu.Unlock()
			fmt.Fprintln(errOut, s.styles.Error(e.Error()))
		},
	})
}

func (s *session) provisioner() *bundle.Provisioner {
	p := &bundle.Provisioner{Log: s.log.Named("bundle")}
	if s.cfg.Bundle.Dir != "" {
		p.Dir = bundle.NewDir(s.cfg.Bundle.Dir, s.cfg.Bundle.VerifyChecksums)
	}
	if s.cfg.Bundle.Fallback != "" {
		p.Fallback = bundle.Fallback(s.cfg.Bundle.Fallback)
	}
	if s.cfg.Bundle.StateFile != "" {
		p.State = bundle.NewStateStore(s.cfg.Bundle.StateFile)
	}
	return p
}

// current returns the active bridge.
func (s *session) current() *bridge.Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge
}

// swap makes b the active bridge and returns the previous one.
func (s *session) swap(b *bridge.Bridge, rec bundle.Installed) *bridge.Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.bridge
	s.bridge = b
	s.installed = &rec
	return old
}

// takeFailures returns and clears the failures reported so far.
func (s *session) takeFailures() []*bridge.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.failures
	s.failures = nil
	return f
}

// errScriptFailed marks a command whose script failures were already printed.
var errScriptFailed = errors.New("script failed")

// failed converts reported failures into a command error. The failures
// themselves were printed by the error handler as they happened.
func (s *session) failed() error {
	failures := s.takeFailures()
	if len(failures) == 0 {
		return nil
	}
	last := failures[len(failures)-1]
	return fmt.Errorf("%w: %d failure(s), last was %s", errScriptFailed, len(failures), last.Kind)
}

func (s *session) close() error {
	err := s.current().Release()
	_ = s.log.Sync()
	return err
}
