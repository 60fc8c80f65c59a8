package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dermd/internal/common/fsutil"
	"dermd/internal/model"
	"dermd/pkg/types"
)

// Extensions recognized as model artifacts.
var Extensions = []string{".dmz", ".tflite", ".h5", ".keras"}

// LoadDir scans a directory for model artifacts. Name is the file name and
// Path the absolute file path; Format is sniffed from the file header. A
// missing directory yields an empty list.
func LoadDir(dir string) ([]types.Artifact, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Artifact{}, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	arts := []types.Artifact{}
	for _, e := range entries {
		if e.IsDir() || !IsArtifactName(e.Name()) {
			continue
		}
		p := filepath.Join(abs, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		f, err := model.DetectFormat(p)
		if err != nil {
			f = model.FormatUnknown
		}
		arts = append(arts, types.Artifact{
			Name:      e.Name(),
			Path:      p,
			Format:    string(f),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime().Unix(),
		})
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].Name < arts[j].Name })
	return arts, nil
}

// MarkActive flags the artifact whose path equals active.
func MarkActive(arts []types.Artifact, active string) {
	if active == "" {
		return
	}
	want, err := filepath.Abs(active)
	if err != nil {
		want = active
	}
	for i := range arts {
		if arts[i].Path == want {
			arts[i].Active = true
		}
	}
}

// IsArtifactName reports whether name carries a model artifact extension.
func IsArtifactName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
