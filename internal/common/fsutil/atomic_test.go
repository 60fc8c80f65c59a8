package fsutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sub", "model.dmz")
	if err := WriteFileAtomic(p, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "payload" {
		t.Fatalf("read back %q err=%v", b, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("expected only the destination file, got %d entries", len(entries))
	}
}

func TestAtomicFile_AbortLeavesDestinationUntouched(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.dmz")
	if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	af, err := CreateAtomic(p, 0o644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := af.Write([]byte("partial")); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp := af.Name()
	af.Abort()
	if PathExists(tmp) {
		t.Fatalf("temp file %s should be removed", tmp)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "old" {
		t.Fatalf("destination changed: %q", b)
	}
}

func TestIsReadableFile(t *testing.T) {
	dir := t.TempDir()
	if ok, _ := IsReadableFile(dir); ok {
		t.Fatalf("directory must not be readable file")
	}
	if ok, err := IsReadableFile(filepath.Join(dir, "nope")); ok || err == nil {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}
	p := filepath.Join(dir, "f")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	if ok, err := IsReadableFile(p); !ok || err != nil {
		t.Fatalf("file: ok=%v err=%v", ok, err)
	}
}

func TestAcquireLock_ExclusiveAndStale(t *testing.T) {
	old := lockPollInterval
	lockPollInterval = 5 * time.Millisecond
	t.Cleanup(func() { lockPollInterval = old })

	p := filepath.Join(t.TempDir(), "model.dmz.lock")
	l1, err := AcquireLock(context.Background(), p, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := AcquireLock(ctx, p, 0); err == nil {
		t.Fatalf("second acquire should time out while held")
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	l2, err := AcquireLock(context.Background(), p, 0)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}

	// Age the lock so it counts as abandoned.
	past := time.Now().Add(-time.Hour)
	_ = os.Chtimes(p, past, past)
	l3, err := AcquireLock(context.Background(), p, time.Minute)
	if err != nil {
		t.Fatalf("stale acquire: %v", err)
	}
	_ = l3.Release()
	_ = l2.Release()
}

func TestRemoveIfSameKeepsReplacedLock(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.dmz.lock")
	if err := os.WriteFile(p, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	// Another waiter takes the stale lock over and creates its own. The old
	// file is kept elsewhere so its inode cannot be reused.
	if err := os.Rename(p, filepath.Join(dir, "old")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("2"), 0o644); err != nil {
		t.Fatal(err)
	}

	if removeIfSame(p, stale) {
		t.Fatalf("removed a lock that replaced the stale one")
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "2" {
		t.Fatalf("replacement lock lost: %q err=%v", b, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("expected lock and old file only, got %d entries", len(entries))
	}

	current, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if !removeIfSame(p, current) || PathExists(p) {
		t.Fatalf("matching lock was not removed")
	}
}
