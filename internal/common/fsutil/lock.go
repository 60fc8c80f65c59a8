package fsutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// lockPollInterval is how often AcquireLock retries while another holder exists.
var lockPollInterval = 100 * time.Millisecond

// FileLock is an exclusive lock represented by a file created with O_EXCL.
type FileLock struct {
	path string
}

// AcquireLock creates path exclusively, waiting until ctx is done while
// another process holds it. A lock file older than staleAfter is treated as
// abandoned and removed (staleAfter <= 0 disables this).
func AcquireLock(ctx context.Context, path string, staleAfter time.Duration) (*FileLock, error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return &FileLock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}
		if staleAfter > 0 {
			if fi, serr := os.Stat(path); serr == nil && time.Since(fi.ModTime()) > staleAfter {
				removeIfSame(path, fi)
				continue
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for lock %s: %w", path, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

// removeIfSame removes the lock at path only while it is still the file
// described by stale. The lock is renamed aside first, so among waiters that
// judged the same lock abandoned only one removes it. A lock re-created by
// another waiter in the meantime is linked back into place.
func removeIfSame(path string, stale os.FileInfo) bool {
	aside := fmt.Sprintf("%s.stale-%d-%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(path, aside); err != nil {
		return false
	}
	moved, err := os.Stat(aside)
	if err == nil && os.SameFile(stale, moved) {
		_ = os.Remove(aside)
		return true
	}
	if err := os.Link(aside, path); err != nil {
		// Link unsupported or a new holder exists; put it back only if free.
		if _, serr := os.Stat(path); errors.Is(serr, os.ErrNotExist) {
			_ = os.Rename(aside, path)
		}
		return false
	}
	_ = os.Remove(aside)
	return false
}

// Release removes the lock file.
func (l *FileLock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
