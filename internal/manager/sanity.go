package manager

import (
	"os"
	"path/filepath"

	"dermd/internal/artifact"
	"dermd/internal/common/fsutil"
	"dermd/internal/model"
)

// SanityReport describes runtime checks for the artifact location and the
// optional TFLite runtime.
type SanityReport struct {
	ArtifactPath      string `json:"artifact_path"`
	ArtifactPresent   bool   `json:"artifact_present"`
	Remote            bool   `json:"remote"`
	TFLiteAvailable   bool   `json:"tflite_available"`
	DestinationWrites bool   `json:"destination_writable"`
	Error             string `json:"error,omitempty"`
}

// SanityCheck reports whether the artifact can be loaded or fetched.
// It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{
		ArtifactPath:    m.plan.Destination,
		Remote:          m.plan.Remote(),
		TFLiteAvailable: model.TFLiteAvailable,
	}
	if m.planErr != nil {
		r.Error = m.planErr.Error()
		return r
	}
	p, err := artifact.Locate(m.plan.Destination)
	r.ArtifactPresent = p == artifact.Present
	if err != nil {
		r.Error = err.Error()
	}
	if r.ArtifactPresent || !r.Remote {
		if !r.ArtifactPresent && r.Error == "" {
			r.Error = "local artifact missing"
		}
		return r
	}
	// A fetch will be needed. The destination directory may not exist yet,
	// so test writing in the nearest ancestor that does.
	dir := existingAncestor(filepath.Dir(m.plan.Destination))
	f, err := os.CreateTemp(dir, ".sanity-*")
	if err != nil {
		r.Error = err.Error()
		return r
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	r.DestinationWrites = true
	return r
}

func existingAncestor(dir string) string {
	for !fsutil.PathExists(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}
