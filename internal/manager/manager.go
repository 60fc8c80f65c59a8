package manager

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"dermd/internal/artifact"
	"dermd/internal/inference"
	"dermd/internal/loader"
	"dermd/internal/model"
	"dermd/pkg/types"
)

// Manager resolves, fetches and loads the model once, then serves
// predictions against the shared read-only handle.
type Manager struct {
	mu sync.RWMutex
	// ensureMu serializes EnsureModelReady.
	ensureMu sync.Mutex

	plan       artifact.Plan
	planErr    error
	modelsDir  string
	labels     []string
	fetcher    Fetcher
	strategies []loader.Strategy
	log        zerolog.Logger
	pub        EventPublisher

	// admission
	maxWait    time.Duration
	queueCh    chan struct{}
	inflightCh chan struct{}

	state      State
	err        string
	cur        *ModelInfo
	handle     model.Handle
	classifier *inference.Classifier
	fetch      *types.FetchStatus
	attempts   []loader.Attempt

	started     time.Time
	predictions atomic.Uint64
}

// NewWithConfig builds a Manager in the loading state. The descriptor is
// resolved here, once; a resolution error surfaces from EnsureModelReady.
func NewWithConfig(cfg ManagerConfig) *Manager {
	cfg.applyDefaults()
	plan, err := artifact.Resolve(cfg.Descriptor)
	dir := cfg.Descriptor.ModelsDir
	if dir == "" && plan.Destination != "" {
		dir = filepath.Dir(plan.Destination)
	}
	return &Manager{
		plan:       plan,
		planErr:    err,
		modelsDir:  dir,
		labels:     append([]string(nil), cfg.Labels...),
		fetcher:    cfg.Fetcher,
		strategies: cfg.Strategies,
		log:        cfg.Logger,
		pub:        noopPublisher{},
		maxWait:    cfg.MaxWait,
		queueCh:    make(chan struct{}, cfg.MaxQueueDepth),
		inflightCh: make(chan struct{}, cfg.MaxConcurrent),
		state:      StateLoading,
		started:    time.Now(),
	}
}

// Plan returns the resolved fetch plan.
func (m *Manager) Plan() artifact.Plan { return m.plan }

// Handle returns the loaded model, or nil before EnsureModelReady succeeds.
func (m *Manager) Handle() model.Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

// Ready reports whether predictions can be served.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

// Labels returns the active labels in model output order. Before the model is
// loaded it returns the configured (or default) labels.
func (m *Manager) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.classifier != nil {
		return m.classifier.Labels()
	}
	return effectiveLabels(m.labels, nil)
}

// Close releases the model handle. The manager cannot be reused.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return nil
	}
	err := m.handle.Close()
	m.handle = nil
	m.classifier = nil
	m.state = StateError
	m.err = "closed"
	return err
}

func (m *Manager) setState(s State, msg string) {
	m.mu.Lock()
	m.state = s
	m.err = msg
	m.mu.Unlock()
}
