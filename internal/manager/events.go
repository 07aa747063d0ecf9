package manager

// Event names published by the manager.
const (
	EventConstruct     = "construct"
	EventStartBegin    = "start_begin"
	EventReady         = "ready"
	EventStartFailed   = "start_failed"
	EventShutdownBegin = "shutdown_begin"
	EventDrainTimeout  = "drain_timeout"
	EventStopped       = "stopped"
)

// Event represents a manager lifecycle event.
// Minimal and stable: name + backend identity and optional fields via key/values.
type Event struct {
	Name   string
	Kind   string
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

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }
