package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"dermd/internal/model"
	"dermd/internal/model/modeltest"
)

func TestLoadDirFiltersArtifacts(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"b.TFLITE", "notes.txt", "weights.bin"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("xxxxTFL3"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.dmz"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	modeltest.Write(t, dir, "a.dmz", modeltest.Tiny(t, 1), modeltest.Current)

	arts, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("expected 2 artifacts, got %+v", arts)
	}
	if arts[0].Name != "a.dmz" || arts[0].Format != string(model.FormatArchive) {
		t.Fatalf("unexpected first artifact: %+v", arts[0])
	}
	if arts[1].Name != "b.TFLITE" || arts[1].Format != string(model.FormatTFLite) {
		t.Fatalf("unexpected second artifact: %+v", arts[1])
	}
	if arts[0].SizeBytes == 0 || !filepath.IsAbs(arts[0].Path) {
		t.Fatalf("expected size and absolute path: %+v", arts[0])
	}

	MarkActive(arts, filepath.Join(dir, "a.dmz"))
	if !arts[0].Active || arts[1].Active {
		t.Fatalf("active flag not applied: %+v", arts)
	}
}

func TestLoadDirMissing(t *testing.T) {
	arts, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(arts) != 0 {
		t.Fatalf("expected no artifacts, got %d", len(arts))
	}
}

func TestLoadDirExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "dermd-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.tflite"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	arts, err := LoadDir(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(arts) != 1 || arts[0].Name != "x.tflite" || arts[0].Format != string(model.FormatUnknown) {
		t.Fatalf("unexpected artifacts: %+v", arts)
	}
}
