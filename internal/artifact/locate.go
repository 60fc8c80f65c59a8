package artifact

import (
	"errors"
	"io/fs"

	"dermd/internal/common/fsutil"
)

// Presence is the result of checking the local artifact path.
type Presence int

const (
	Missing Presence = iota
	Present
)

func (p Presence) String() string {
	if p == Present {
		return "present"
	}
	return "missing"
}

// Locate reports whether a readable regular file exists at path. It never
// modifies the filesystem. Errors other than non-existence are returned as
// the reason the artifact counts as missing.
func Locate(path string) (Presence, error) {
	ok, err := fsutil.IsReadableFile(path)
	if ok {
		return Present, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Missing, err
	}
	return Missing, nil
}
