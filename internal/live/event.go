// Package live fans out typed events to connected live-update clients.
package live

// EventType classifies a live-update event.
type EventType string

// Event types.
const (
	EventStatus     EventType = "status"
	EventDeployment EventType = "deployment"
	EventUptime     EventType = "uptime"
	EventAlert      EventType = "alert"
	EventConnected  EventType = "connected"
	EventPing       EventType = "ping"
)

// Event is one live-update message. Project is empty for connection-level
// events (connected, ping), which bypass subscriber filters.
type Event struct {
	Type    EventType `json:"type"`
	Project string    `json:"project,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// Sink delivers events to one subscriber. Implementations must be safe for
// concurrent Send calls: broadcasts and heartbeats run on different
// goroutines.
type Sink interface {
	Send(Event) error
}
