package manager

import "time"

// State represents the lifecycle state of the manager.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// ModelInfo is a minimal view of the loaded model.
type ModelInfo struct {
	Path     string
	Format   string
	Strategy string
	Degraded bool
	LoadedAt time.Time
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
}
