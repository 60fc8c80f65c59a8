package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	t.Setenv("DERMD_ADDR", "")
	t.Setenv("DERMD_CONFIG", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dermd.yaml")
	doc := "addr: :7000\nmodels_dir: " + dir + "\nartifact:\n  dest: " + filepath.Join(dir, "skin.dmz") + "\nlabels: [a, b]\n"
	if err := os.WriteFile(cfgPath, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	o, set, err := parseFlags([]string{"-config", cfgPath, "-labels", "x, y ,z", "-cors-enabled"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := resolveConfig(o, set)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("addr from file should survive: %q", cfg.Addr)
	}
	if len(cfg.Labels) != 3 || cfg.Labels[2] != "z" {
		t.Fatalf("labels flag not applied: %v", cfg.Labels)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.Methods) == 0 {
		t.Fatalf("cors not applied: %+v", cfg.CORS)
	}
}

func TestEnvAddrOverridesFile(t *testing.T) {
	t.Setenv("DERMD_ADDR", ":9191")
	o, set, err := parseFlags([]string{"-artifact-dest", "skin.dmz"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := resolveConfig(o, set)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":9191" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
}

func TestResolveConfigRequiresArtifact(t *testing.T) {
	t.Setenv("DERMD_ADDR", "")
	t.Setenv("DERMD_CONFIG", "")
	o, set, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := resolveConfig(o, set); err == nil {
		t.Fatalf("expected validation error without artifact")
	}
}

func TestRunFailsFastWhenModelCannotLoad(t *testing.T) {
	t.Setenv("DERMD_ADDR", "")
	t.Setenv("DERMD_CONFIG", "")
	dest := filepath.Join(t.TempDir(), "missing.dmz")
	err := run([]string{"-artifact-dest", dest, "-log-level", "error", "-addr", "127.0.0.1:0"})
	if err == nil {
		t.Fatalf("expected startup failure for missing local artifact")
	}
}
