// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const historyFileName = ".jsbridge_history"

func newReplCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive JavaScript shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			startREPL(s, cmd.InOrStdin())
			return nil
		},
	}
}

// replLine handles one line of input. It returns false when the shell
// should exit.
func replLine(s *session, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case "quit", "exit", ".exit":
		return false
	case ".state":
		b := s.current()
		fmt.Fprintf(s.out, "engine: %s, bundle: %s\n", b.State(), b.BundleState())
		if s.installed != nil {
			fmt.Fprintf(s.out, "installed: %s (version %d)\n", s.installed.Name, s.installed.Version)
		}
		return true
	case ".help":
		fmt.Fprintln(s.out, s.styles.Info(".state  show engine and bundle state\n.exit   leave the shell"))
		return true
	}

	result := s.current().Evaluate(line)
	if len(s.takeFailures()) > 0 {
		// Already printed by the error handler.
		return true
	}
	if text, ok := formatResult(result); ok {
		fmt.Fprintln(s.out, s.styles.Result(text))
	}
	return true
}

func startBasicREPL(s *session, in io.Reader) {
	fmt.Fprintln(s.out, "Running in basic mode (no history)")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "js> ")
		if !scanner.Scan() {
			break
		}
		if !replLine(s, scanner.Text()) {
			break
		}
	}
}

func startREPL(s *session, in io.Reader) {
	fmt.Fprintln(s.out, "jsbridge - JavaScript shell")
	fmt.Fprintln(s.out, "Type '.help' for commands or 'quit' to exit")

	// Line editing needs a real terminal on both ends.
	if in != os.Stdin || s.out != os.Stdout {
		startBasicREPL(s, in)
		return
	}

	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.styles.Prompt("js>") + " ",
		HistoryFile:       filepath.Join(homeDir, historyFileName),
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(s.out, "Failed to create readline instance, falling back to basic input: %v\n", err)
		startBasicREPL(s, in)
		return
	}
	defer func() {
		_ = rl.Close() // Best-effort close, errors during shutdown not critical
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					fmt.Fprintln(s.out, "Use 'quit' or 'exit' to exit")
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out, "\nGoodbye!")
				break
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			continue
		}
		if !replLine(s, line) {
			break
		}
	}
}
