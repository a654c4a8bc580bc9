// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aplane-algo/scriptbridge/internal/bundle"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var onLoad string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a bridge running and replace it whenever a newer bundle appears",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			if s.cfg.Bundle.Dir == "" {
				return errors.New("watch requires bundle.dir in the config file")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchBundles(ctx, s, cmd.ErrOrStderr(), onLoad)
		},
	}
	cmd.Flags().StringVar(&onLoad, "on-load", "",
		"expression evaluated after every install (e.g. a health check)")
	return cmd
}

// watchBundles follows the bundle directory until ctx is done. Each newer
// bundle is installed into a fresh bridge; the old bridge is released only
// after the new one loaded successfully.
func watchBundles(ctx context.Context, s *session, errOut io.Writer, onLoad string) error {
	var current uint64
	if s.installed != nil {
		current = s.installed.Version
		announce(s, onLoad)
	}

	swaps := make(chan *bundle.File, 1)
	w := bundle.NewWatcher(bundle.NewDir(s.cfg.Bundle.Dir, s.cfg.Bundle.VerifyChecksums),
		current, s.cfg.Bundle.Debounce.Duration, s.log.Named("watch"),
		func(f *bundle.File) {
			select {
			case swaps <- f:
			case <-ctx.Done():
			}
		})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case f := <-swaps:
				if err := replace(s, errOut, f); err != nil {
					s.log.Warn("keeping current bundle", zap.String("candidate", f.Name()), zap.Error(err))
					continue
				}
				announce(s, onLoad)
			}
		}
	})
	return g.Wait()
}

// replace provisions a new bridge and swaps it in.
func replace(s *session, errOut io.Writer, f *bundle.File) error {
	b, err := s.newBridge(errOut)
	if err != nil {
		return err
	}
	rec, err := s.provisioner().Install(b)
	if err != nil {
		_ = b.Release()
		return err
	}
	if rec.Version != f.Version() {
		// A failed candidate fell back to an older bundle; the current
		// bridge already runs something at least as good.
		_ = b.Release()
		return fmt.Errorf("%s did not load, provisioning fell back to %s", f.Name(), rec.Name)
	}

	old := s.swap(b, rec)
	if err := old.Release(); err != nil {
		s.log.Warn("failed to release previous bridge", zap.Error(err))
	}
	return nil
}

func announce(s *session, onLoad string) {
	b := s.current()
	s.mu.Lock()
	rec := s.installed
	s.mu.Unlock()
	if rec != nil {
		fmt.Fprintln(s.out, s.styles.Info(fmt.Sprintf("running %s (version %d)", rec.Name, rec.Version)))
	}
	if onLoad == "" {
		return
	}
	if text, ok := formatResult(b.Evaluate(onLoad)); ok {
		fmt.Fprintln(s.out, s.styles.Result(text))
	}
	s.takeFailures()
}
