package main

import (
	"path/filepath"
	"testing"

	"macrodex/internal/config"
	"macrodex/internal/slogutil"
)

func TestEventFileName(t *testing.T) {
	root := filepath.FromSlash("/work/repo")
	tests := []struct {
		main string
		want string
	}{
		{filepath.FromSlash("/work/repo/main.c"), "main.c.events.yaml"},
		{filepath.FromSlash("/work/repo/src/net/sock.c"), "src__net__sock.c.events.yaml"},
		{filepath.FromSlash("/elsewhere/x.c"), "elsewhere__x.c.events.yaml"},
	}
	for _, tt := range tests {
		if got := eventFileName(root, tt.main); got != tt.want {
			t.Errorf("eventFileName(%q) = %q, want %q", tt.main, got, tt.want)
		}
	}
}

func TestBaseFlags(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Preprocessor.IncludePaths = []string{"include"}
	cfg.Preprocessor.Defines = []string{"DEBUG", "LEVEL=3"}
	cfg.Preprocessor.Undefines = []string{"NDEBUG"}

	ws := &workspace{root: root, cfg: cfg, logger: slogutil.NewDiscardLogger()}
	flags := baseFlags(ws)

	if len(flags.IncludePaths) != 1 || flags.IncludePaths[0] != filepath.Join(root, "include") {
		t.Errorf("IncludePaths = %v", flags.IncludePaths)
	}
	if len(flags.Defines) != 3 {
		t.Fatalf("Defines = %+v, want 3 entries", flags.Defines)
	}
	if d := flags.Defines[0]; d.Name != "DEBUG" || d.Value != "1" || d.Undef {
		t.Errorf("Defines[0] = %+v", d)
	}
	if d := flags.Defines[1]; d.Name != "LEVEL" || d.Value != "3" {
		t.Errorf("Defines[1] = %+v", d)
	}
	if d := flags.Defines[2]; d.Name != "NDEBUG" || !d.Undef {
		t.Errorf("Defines[2] = %+v", d)
	}
}
