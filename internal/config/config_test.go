package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"latte/internal/trace"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, `
[runtime]
heap_limit = 1048576
heap_stats = true

[record]
path = "run.ndjson"
format = "msgpack"

[trace]
level = "call"
mode = "both"
ring_size = 64
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.HeapLimit != 1<<20 || !cfg.Runtime.HeapStats {
		t.Fatalf("runtime = %+v", cfg.Runtime)
	}
	if cfg.Record.Path != "run.ndjson" || cfg.Record.Format != "msgpack" {
		t.Fatalf("record = %+v", cfg.Record)
	}
	// unset keys keep their defaults
	if cfg.Trace.Output != "-" || cfg.Trace.Format != "auto" {
		t.Fatalf("trace defaults lost: %+v", cfg.Trace)
	}
	tc, err := cfg.TracerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if tc.Level != trace.LevelCall || tc.Mode != trace.ModeBoth || tc.RingSize != 64 {
		t.Fatalf("tracer config = %+v", tc)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, content, wantErr string
	}{
		{"syntax", "[runtime\n", "failed to parse TOML"},
		{"negative limit", "[runtime]\nheap_limit = -1\n", "heap_limit"},
		{"bad format", "[record]\nformat = \"xml\"\n", "[record].format"},
		{"bad level", "[trace]\nlevel = \"loud\"\n", "[trace].level"},
		{"unknown key", "[runtime]\nheap = 1\n", "unknown key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDiscover_WalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "[runtime]\nheap_limit = 10\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, found, err := Discover(nested)
	if err != nil || !found {
		t.Fatalf("Discover = %v, %v", found, err)
	}
	if cfg.Runtime.HeapLimit != 10 {
		t.Fatalf("heap_limit = %d", cfg.Runtime.HeapLimit)
	}
}

func TestDiscover_DefaultWhenMissing(t *testing.T) {
	// TempDir has no latte.toml; a parent might, so only check Find's contract
	dir := t.TempDir()
	path, found, err := Find(dir)
	if err != nil {
		t.Fatal(err)
	}
	if found && filepath.Dir(path) == dir {
		t.Fatalf("unexpected %s", path)
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
}
