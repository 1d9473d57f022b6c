package manager

// Event is a runtime lifecycle event: load_start, load_ready, load_failed,
// unload_start, unload_forced, unload_done, runtime_fault, session_evicted,
// memory_pressure.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
