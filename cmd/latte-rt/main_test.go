package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"latte/internal/builtins"
	"latte/internal/rt"
)

func writeLog(t *testing.T, dir, name string, format rt.LogFormat, events ...rt.LogEvent) string {
	t.Helper()
	var buf bytes.Buffer
	rec := rt.NewRecorder(&buf, format, "test")
	for _, ev := range events {
		rec.Record(ev)
	}
	if err := rec.Err(); err != nil {
		t.Fatalf("record: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestCheckLogs(t *testing.T) {
	dir := t.TempDir()
	good := writeLog(t, dir, "good.ndjson", rt.LogNDJSON,
		rt.LogEvent{Kind: rt.EventReadString, Text: "bob"},
		rt.LogEvent{Kind: rt.EventWrite, Text: "hi bob"},
		rt.LogEvent{Kind: rt.EventExit},
	)
	fatal := writeLog(t, dir, "fatal.msgpack", rt.LogMsgpack,
		rt.LogEvent{Kind: rt.EventFatal, Code: rt.ExitFailure, Fatal: rt.UserAbort.String()},
	)
	truncated := writeLog(t, dir, "trunc.ndjson", rt.LogNDJSON,
		rt.LogEvent{Kind: rt.EventWrite, Text: "1"},
	)
	bad := filepath.Join(dir, "bad.ndjson")
	if err := os.WriteFile(bad, []byte("{\"kind\":\"write\"}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.ndjson")

	paths := []string{good, fatal, truncated, bad, missing}
	results, err := checkLogs(context.Background(), paths, 2)
	if err != nil {
		t.Fatalf("checkLogs: %v", err)
	}
	if len(results) != len(paths) {
		t.Fatalf("got %d results, want %d", len(results), len(paths))
	}
	for i, res := range results {
		if res.Path != paths[i] {
			t.Fatalf("result %d is %s, want %s", i, res.Path, paths[i])
		}
	}
	for _, i := range []int{0, 1, 2} {
		if results[i].Err != nil {
			t.Fatalf("%s: unexpected error %v", paths[i], results[i].Err)
		}
	}
	if results[1].Log.Format != rt.LogMsgpack {
		t.Fatalf("fatal log format = %s", results[1].Log.Format)
	}
	for _, i := range []int{3, 4} {
		if results[i].Err == nil {
			t.Fatalf("%s: expected error", paths[i])
		}
	}

	color.NoColor = true
	var out bytes.Buffer
	if n := reportLogs(&out, results, false); n != 2 {
		t.Fatalf("failures = %d, want 2\n%s", n, out.String())
	}
	if n := reportLogs(&bytes.Buffer{}, results, true); n != 3 {
		t.Fatalf("strict failures = %d, want 3", n)
	}
	text := out.String()
	for _, want := range []string{
		"ok " + good + ": ndjson, 3 events (exit=1 read_string=1 write=1), exit 0",
		"fatal " + rt.UserAbort.String(),
		"warn " + truncated,
		"FAIL " + bad,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
}

func TestCheckLogs_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := checkLogs(ctx, []string{"a", "b"}, 1); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestRenderBuiltins(t *testing.T) {
	var out bytes.Buffer
	renderBuiltins(&out, builtins.All())
	text := out.String()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) < len(builtins.All())+1 {
		t.Fatalf("too few lines:\n%s", text)
	}
	for _, b := range builtins.All() {
		if !strings.Contains(text, b.Symbol) {
			t.Fatalf("table missing %s:\n%s", b.Symbol, text)
		}
	}
	if !strings.Contains(text, "concat*") {
		t.Fatalf("internal builtins should be marked:\n%s", text)
	}
}

func TestParseCallArgs(t *testing.T) {
	lookup := func(name string) *builtins.Builtin {
		b, ok := builtins.Lookup(name)
		if !ok {
			t.Fatalf("missing builtin %s", name)
		}
		return b
	}

	args, err := parseCallArgs(lookup("printString"), []string{"42"})
	if err != nil {
		t.Fatalf("printString 42: %v", err)
	}
	if args[0].Kind != builtins.ArgText || args[0].Text != "42" {
		t.Fatalf("printString 42 = %+v, want text", args[0])
	}

	args, err = parseCallArgs(lookup("printInt"), []string{"-7"})
	if err != nil || args[0].Kind != builtins.ArgInt || args[0].Int != -7 {
		t.Fatalf("printInt -7 = %+v, %v", args, err)
	}

	args, err = parseCallArgs(lookup("concat"), []string{"1", "2"})
	if err != nil || args[0].Kind != builtins.ArgText || args[1].Text != "2" {
		t.Fatalf("concat 1 2 = %+v, %v", args, err)
	}

	for _, tt := range []struct {
		name  string
		words []string
	}{
		{"printInt", []string{"abc"}},
		{"printInt", []string{"99999999999"}},
		{"printInt", nil},
		{"readInt", []string{"1"}},
	} {
		if _, err := parseCallArgs(lookup(tt.name), tt.words); err == nil {
			t.Errorf("%s %v: expected error", tt.name, tt.words)
		}
	}
}

func TestCallRunsStringArgument(t *testing.T) {
	b, _ := builtins.Lookup("printString")
	args, err := parseCallArgs(b, []string{"42"})
	if err != nil {
		t.Fatal(err)
	}
	con := rt.NewTestConsole("")
	r := rt.New(con, rt.Options{})
	script := &builtins.Script{Lines: []builtins.Line{{No: 1, Name: b.Name, Args: args}}}
	if _, err := script.Run(r); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := con.Output(); got != "42\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestRootCommandErrorOmitsUsage(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--color", "off", "log", "check", filepath.Join(t.TempDir(), "missing.ndjson")})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "1 of 1 record logs failed") {
		t.Fatalf("Execute = %v", err)
	}
	if strings.Contains(out.String(), "Usage:") {
		t.Fatalf("usage printed on error:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "FAIL") {
		t.Fatalf("missing per-file report:\n%s", out.String())
	}
}
