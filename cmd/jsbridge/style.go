// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/aplane-algo/scriptbridge/internal/value"
)

// styles renders CLI output. Text passes through untouched unless the
// writer is a terminal.
type styles struct {
	on     bool
	prompt lipgloss.Style
	result lipgloss.Style
	err    lipgloss.Style
	info   lipgloss.Style
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.on {
		return text
	}
	return st.Render(text)
}

func (s styles) Prompt(text string) string { return s.render(s.prompt, text) }
func (s styles) Result(text string) string { return s.render(s.result, text) }
func (s styles) Error(text string) string  { return s.render(s.err, text) }
func (s styles) Info(text string) string   { return s.render(s.info, text) }

// supportsColor checks if w is a terminal that understands ANSI codes.
func supportsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !term.IsTerminal(int(f.Fd())) { // #nosec G115 - file descriptors are small integers
		return false
	}
	t := os.Getenv("TERM")
	return t != "" && t != "dumb"
}

func newStyles(w io.Writer) styles {
	if !supportsColor(w) {
		return styles{}
	}
	return styles{
		on:     true,
		prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")).Bold(true),
		result: lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		info:   lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

// formatResult renders a value for display. Strings print bare; Undefined
// prints nothing.
func formatResult(v value.Value) (string, bool) {
	switch v.Kind() {
	case value.KindUndefined:
		return "", false
	case value.KindString:
		s, _ := v.Str()
		return s, true
	}
	return v.String(), true
}
