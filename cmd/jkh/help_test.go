package main

import (
	"strings"
	"testing"

	"github.com/alfredjeanlab/jkh/internal/ui"
)

func TestColorizeHelpOutput_NoColor(t *testing.T) {
	ui.ForceNoColor()
	in := "Data:\n  kv          Read and write keys\n\nFlags:\n      --root string   installation root\n"
	if got := colorizeHelpOutput(in); got != in {
		t.Fatalf("expected help unchanged without color, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"line\nbreak", 20, `line\nbreak`},
		{strings.Repeat("x", 12), 10, "xxxxxxx..."},
	} {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestCommandTree(t *testing.T) {
	want := map[string]bool{
		"launch": true, "serve": true, "initdb": true,
		"kv": true, "backup": true, "health": true, "config": true,
	}
	for _, c := range rootCmd.Commands() {
		delete(want, c.Name())
	}
	if len(want) != 0 {
		t.Fatalf("missing commands: %v", want)
	}

	for _, name := range []string{"host", "port", "threads"} {
		if serveCmd.Flags().Lookup(name) == nil {
			t.Errorf("serve is missing --%s", name)
		}
	}
	if rootCmd.Flags().Lookup("open-browser") == nil {
		t.Error("root command is missing --open-browser")
	}
}

func TestHelpOutput_PlainWhenNotTerminal(t *testing.T) {
	t.Cleanup(func() {
		if f := rootCmd.Flags().Lookup("help"); f != nil {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	})
	out, _, err := runCLI(t, "", "--help")
	if err != nil {
		t.Fatalf("--help: %v", err)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("help written to a buffer should not be colored:\n%s", out)
	}
	for _, want := range []string{"Application:", "Data:", "System:", "serve", "backup", "--open-browser"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}
