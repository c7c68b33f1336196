package status

import (
	"sync"

	"github.com/jaslr/orchon/internal/domain"
)

// Observation is the result of recording a new status for a key.
type Observation struct {
	// Changed is true when the status differs from the previous observation
	// of the same key. The first observation of a key is never a change, so
	// a restart does not trigger a broadcast storm.
	Changed  bool
	First    bool
	Previous domain.HealthStatus
}

// Tracker remembers the last observed status per monitored key. It is an
// in-memory cache with process lifetime: created empty at startup, never
// persisted, cleared only by restart.
type Tracker struct {
	mu   sync.Mutex
	last map[string]domain.HealthStatus
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]domain.HealthStatus)}
}

// Key builds the tracking key for a service, with an optional sub-aspect tag
// for services that expose more than one monitored aspect.
func Key(serviceID, aspect string) string {
	if aspect == "" {
		return serviceID
	}
	return serviceID + "-" + aspect
}

// Observe records the new status for key and reports whether a transition
// occurred relative to the previous observation.
func (t *Tracker) Observe(key string, status domain.HealthStatus) Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, seen := t.last[key]
	t.last[key] = status

	if !seen {
		return Observation{First: true}
	}

	return Observation{
		Changed:  previous != status,
		Previous: previous,
	}
}

// Last returns the last observed status for key, if any.
func (t *Tracker) Last(key string) (domain.HealthStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.last[key]
	return s, ok
}
