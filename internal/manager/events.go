package manager

// Event represents a manager lifecycle event.
// Minimal and stable: name + artifact path and optional fields via key/values.
type Event struct {
	Name     string
	Artifact string
	Fields   map[string]any
}

// Event names published by EnsureModelReady.
const (
	EventEnsureStart  = "ensure_start"
	EventFetchStart   = "fetch_start"
	EventFetchDone    = "fetch_done"
	EventFetchFailed  = "fetch_failed"
	EventLoadAttempt  = "load_attempt"
	EventEnsureReady  = "ensure_ready"
	EventEnsureFailed = "ensure_failed"
)

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// SetEventPublisher installs a publisher; nil restores the no-op default.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		p = noopPublisher{}
	}
	m.pub = p
}

func (m *Manager) publish(name string, fields map[string]any) {
	m.mu.RLock()
	p := m.pub
	m.mu.RUnlock()
	p.Publish(Event{Name: name, Artifact: m.plan.Destination, Fields: fields})
}
