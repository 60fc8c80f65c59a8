package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// AtomicFile is a temporary file that replaces its destination only on Commit.
// Until then the destination is untouched, so a reader never observes a
// partially written file.
type AtomicFile struct {
	f         *os.File
	dest      string
	perm      os.FileMode
	committed bool
	closed    bool
}

// CreateAtomic opens a temporary file next to dest. The parent directory is
// created when missing.
func CreateAtomic(dest string, perm os.FileMode) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, filepath.Base(dest)+".tmp.*")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{f: f, dest: dest, perm: perm}, nil
}

// Name returns the temporary file path.
func (a *AtomicFile) Name() string { return a.f.Name() }

func (a *AtomicFile) Write(p []byte) (int, error) { return a.f.Write(p) }

// Commit flushes the temporary file and renames it over the destination.
func (a *AtomicFile) Commit() error {
	if err := a.f.Chmod(a.perm); err != nil {
		a.Abort()
		return err
	}
	if err := a.f.Sync(); err != nil {
		a.Abort()
		return err
	}
	a.closed = true
	if err := a.f.Close(); err != nil {
		a.Abort()
		return err
	}
	if err := os.Rename(a.f.Name(), a.dest); err != nil {
		a.Abort()
		return err
	}
	a.committed = true
	return fsyncDir(filepath.Dir(a.dest))
}

// Abort discards the temporary file. It is a no-op after Commit.
func (a *AtomicFile) Abort() {
	if a.committed {
		return
	}
	if !a.closed {
		a.closed = true
		_ = a.f.Close()
	}
	_ = os.Remove(a.f.Name())
}

// WriteFileAtomic writes data to path through a temporary file and rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	af, err := CreateAtomic(path, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(af, bytes.NewReader(data)); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}
