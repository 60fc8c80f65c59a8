package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("home directory comes from USERPROFILE")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	for in, want := range map[string]string{
		"":                  "",
		"/srv/models":       "/srv/models",
		"models/skin.dmz":   "models/skin.dmz",
		"~":                 home,
		"~/models/skin.dmz": filepath.Join(home, "models", "skin.dmz"),
	} {
		got, err := ExpandHome(in)
		if err != nil || got != want {
			t.Fatalf("ExpandHome(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "skin.dmz")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	for path, want := range map[string]bool{
		dir:                               true,
		file:                              true,
		filepath.Join(dir, "absent.dmz"):  false,
		filepath.Join(dir, "a", "b", "c"): false,
	} {
		if got := PathExists(path); got != want {
			t.Fatalf("PathExists(%s) = %v, want %v", path, got, want)
		}
	}
}
