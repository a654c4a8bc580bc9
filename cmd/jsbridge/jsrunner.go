// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEvalCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <expression>...",
		Short: "Evaluate a JavaScript expression and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			return runExpression(s, strings.Join(args, " "))
		},
	}
}

// runExpression evaluates expr and prints its result.
func runExpression(s *session, expr string) error {
	result := s.current().Evaluate(expr)
	if err := s.failed(); err != nil {
		return err
	}
	if text, ok := formatResult(result); ok {
		fmt.Fprintln(s.out, text)
	}
	return nil
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file|->",
		Short: "Load a JavaScript file (or stdin) as a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			return runScript(s, args[0], cmd.InOrStdin())
		},
	}
}

// runScript loads the script at path ("-" for stdin) into the bridge.
func runScript(s *session, path string, stdin io.Reader) error {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
		s.log.Debug("running script", zap.String("path", filepath.Clean(path)))
	}

	if err := s.current().LoadBundle(r); err != nil {
		// Already printed by the error handler.
		s.takeFailures()
		return fmt.Errorf("%w: %s", errScriptFailed, path)
	}
	return s.failed()
}
