package manager

import (
	"time"

	"dermd/internal/registry"
	"dermd/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cur *ModelInfo
	if m.cur != nil {
		c := *m.cur
		cur = &c
	}
	return Snapshot{State: m.state, CurrentModel: cur, Err: m.err}
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		State:         string(m.state),
		Ready:         m.state == StateReady,
		Error:         m.err,
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Predictions:   m.predictions.Load(),
		Attempts:      make([]types.AttemptStatus, 0, len(m.attempts)),
	}
	for _, a := range m.attempts {
		resp.Attempts = append(resp.Attempts, attemptStatus(a))
	}
	if m.fetch != nil {
		f := *m.fetch
		resp.Fetch = &f
	}
	if m.cur != nil {
		resp.Degraded = m.cur.Degraded
		resp.Model = &types.ModelStatus{
			Path:     m.cur.Path,
			Format:   m.cur.Format,
			Strategy: m.cur.Strategy,
		}
	}
	if m.classifier != nil {
		in := m.classifier.InputShape()
		resp.Labels = m.classifier.Labels()
		resp.Model.InputShape = []int{in.H, in.W, in.C}
		resp.Model.Classes = len(resp.Labels)
	}
	return resp
}

// ListModels returns the artifacts in the models directory with the loaded
// one marked active.
func (m *Manager) ListModels() ([]types.Artifact, error) {
	dir := m.modelsDir
	if dir == "" {
		dir = "."
	}
	arts, err := registry.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if snap := m.Snapshot(); snap.CurrentModel != nil {
		registry.MarkActive(arts, snap.CurrentModel.Path)
	}
	return arts, nil
}
