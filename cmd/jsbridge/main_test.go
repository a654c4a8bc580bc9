// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aplane-algo/scriptbridge/internal/bridge"
	"github.com/aplane-algo/scriptbridge/internal/value"
)

// testEnv is a config file plus a bundle directory in a temp dir.
type testEnv struct {
	dir       string
	bundleDir string
	config    string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:       dir,
		bundleDir: filepath.Join(dir, "bundles"),
		config:    filepath.Join(dir, "scriptbridge.yaml"),
	}
	if err := os.MkdirAll(env.bundleDir, 0700); err != nil {
		t.Fatal(err)
	}
	content := "timeout: 5s\nlog:\n  level: error\n" + extra
	if err := os.WriteFile(env.config, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) writeBundle(t *testing.T, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.bundleDir, name), []byte(src), 0600); err != nil {
		t.Fatal(err)
	}
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, env *testEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", env.config}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, newTestEnv(t, ""), "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "jsbridge ") || !strings.Contains(out, "engine: goja") {
		t.Errorf("version output = %q", out)
	}
}

func TestEvalCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"arithmetic", []string{"1 + 2"}, "3\n"},
		{"joined args", []string{"'a'", "+", "'b'"}, "ab\n"},
		{"object", []string{"({k: [1, 2.5]})"}, "{k: [1, 2.5]}\n"},
		{"undefined prints nothing", []string{"void 0"}, ""},
		{"console output", []string{"console.log('hi', 1)"}, "hi, 1\n"},
		{"bridge global", []string{"bridge.engine"}, "goja\n"},
	}

	env := newTestEnv(t, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, env, "", append([]string{"eval"}, tt.args...)...)
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestEvalFailure(t *testing.T) {
	out, errOut, err := execute(t, newTestEnv(t, ""), "", "eval", "null.x")
	if !errors.Is(err, errScriptFailed) {
		t.Fatalf("eval error = %v, want errScriptFailed", err)
	}
	if out != "" {
		t.Errorf("stdout = %q, want empty", out)
	}
	if !strings.Contains(errOut, "evaluation error") {
		t.Errorf("stderr = %q, want the classified error", errOut)
	}
}

func TestEvalWithProvisionedBundle(t *testing.T) {
	env := newTestEnv(t, "bundle:\n  dir: bundles\n")
	env.writeBundle(t, "bundle-1.js", "function greet(n) { return 'v1 ' + n; }")
	env.writeBundle(t, "bundle-2.js", "function greet(n) { return 'v2 ' + n; }")

	out, _, err := execute(t, env, "", "eval", "greet('x')")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if out != "v2 x\n" {
		t.Errorf("output = %q, want v2 x", out)
	}
	if _, err := os.Stat(filepath.Join(env.bundleDir, "installed.cbor")); err != nil {
		t.Errorf("installed record not written: %v", err)
	}
}

func TestEvalFallsBackWhenLatestBundleFails(t *testing.T) {
	env := newTestEnv(t, "bundle:\n  dir: bundles\n  fallback: fallback.js\n")
	env.writeBundle(t, "bundle-2.js", "missingHelper(); function greet(n) { return 'v2 ' + n; }")
	if err := os.WriteFile(filepath.Join(env.dir, "fallback.js"), []byte("function greet(n) { return 'fallback ' + n; }"), 0600); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := execute(t, env, "", "eval", "greet('x')")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if out != "fallback x\n" {
		t.Errorf("output = %q, want fallback x", out)
	}
	if !strings.Contains(errOut, "missingHelper") {
		t.Errorf("stderr = %q, want the failed bundle reported", errOut)
	}
}

func TestEvalWithoutAnyBundle(t *testing.T) {
	env := newTestEnv(t, "bundle:\n  dir: bundles\n")
	if _, _, err := execute(t, env, "", "eval", "1"); err == nil {
		t.Error("eval succeeded with an empty bundle directory")
	}
}

func TestRunCommand(t *testing.T) {
	env := newTestEnv(t, "")
	script := filepath.Join(env.dir, "script.js")
	if err := os.WriteFile(script, []byte("console.log('from file'); console.error('to stderr');"), 0600); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := execute(t, env, "", "run", script)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "from file\n" {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(errOut, "to stderr") {
		t.Errorf("stderr = %q", errOut)
	}

	out, _, err = execute(t, env, "console.log(6 * 7)", "run", "-")
	if err != nil {
		t.Fatalf("run stdin: %v", err)
	}
	if out != "42\n" {
		t.Errorf("stdin output = %q, want 42", out)
	}
}

func TestRunFailures(t *testing.T) {
	env := newTestEnv(t, "")

	_, _, err := execute(t, env, "throw new Error('nope')", "run", "-")
	if !errors.Is(err, errScriptFailed) {
		t.Errorf("run throwing script = %v, want errScriptFailed", err)
	}

	_, _, err = execute(t, env, "", "run", filepath.Join(env.dir, "absent.js"))
	if err == nil {
		t.Error("run of a missing file succeeded")
	}
}

func TestReplBasicMode(t *testing.T) {
	env := newTestEnv(t, "")
	input := "var x = 20\nx + 1\nnull.x\n.state\nquit\nx + 100\n"

	out, errOut, err := execute(t, env, input, "repl")
	if err != nil {
		t.Fatalf("repl: %v", err)
	}
	if !strings.Contains(out, "21\n") {
		t.Errorf("output missing result 21: %q", out)
	}
	if !strings.Contains(out, "engine: ready, bundle: not loaded") {
		t.Errorf("output missing state line: %q", out)
	}
	if strings.Contains(out, "120") {
		t.Errorf("input after quit was evaluated: %q", out)
	}
	if !strings.Contains(errOut, "evaluation error") {
		t.Errorf("stderr missing failure: %q", errOut)
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name   string
		in     value.Value
		want   string
		wantOK bool
	}{
		{"undefined", value.Undefined(), "", false},
		{"string is bare", value.String("plain"), "plain", true},
		{"int", value.Int(3), "3", true},
		{"bool", value.Bool(false), "false", true},
		{"array", value.Array(value.String("a")), `["a"]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatResult(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("formatResult = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestWatchReplacesBridge(t *testing.T) {
	env := newTestEnv(t, "bundle:\n  dir: bundles\n  debounce: 20ms\n")
	env.writeBundle(t, "bundle-1.js", "var release = 1;")

	var out, errOut bytes.Buffer
	s, err := openSession(&globalFlags{configPath: env.config}, &out, &errOut)
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer func() { _ = s.close() }()
	first := s.current()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchBundles(ctx, s, &errOut, "") }()

	time.Sleep(100 * time.Millisecond)
	env.writeBundle(t, "bundle-2.js", "var release = 2;")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.current().Get("release"); value.Equal(got, value.Int(2)) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watchBundles: %v", err)
	}

	if got := s.current().Get("release"); !value.Equal(got, value.Int(2)) {
		t.Fatalf("release = %v after newer bundle, want 2", got)
	}
	if first.State() != bridge.StateReleased {
		t.Errorf("previous bridge state = %v, want %v", first.State(), bridge.StateReleased)
	}
}
