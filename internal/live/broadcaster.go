package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHeartbeatInterval keeps intermediary proxies from closing idle
// connections.
const DefaultHeartbeatInterval = 30 * time.Second

type subscriber struct {
	id       string
	sink     Sink
	projects map[string]bool // empty means no filter
}

// Broadcaster tracks the open set of live-update subscribers and fans out
// events. Delivery is at-most-once: a sink that fails a write is pruned, not
// retried, and there is no replay for late subscribers.
type Broadcaster struct {
	heartbeatInterval time.Duration

	mu   sync.RWMutex
	subs map[string]*subscriber

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewBroadcaster creates a broadcaster with the default heartbeat interval.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		heartbeatInterval: DefaultHeartbeatInterval,
		subs:              make(map[string]*subscriber),
		stopCh:            make(chan struct{}),
	}
}

// Start launches the heartbeat loop.
func (b *Broadcaster) Start() {
	b.wg.Add(1)
	go b.heartbeatLoop()
}

// Stop halts the heartbeat loop. Connected sinks are owned by their
// transport handlers and close with their requests.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// Subscribe registers a sink with an optional project filter and sends the
// connected acknowledgment. A sink that cannot even take the ack is rejected.
func (b *Broadcaster) Subscribe(sink Sink, projects []string) (string, error) {
	id := uuid.NewString()

	ack := Event{
		Type: EventConnected,
		Data: map[string]any{
			"subscriber_id": id,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := sink.Send(ack); err != nil {
		return "", err
	}

	filter := make(map[string]bool, len(projects))
	for _, p := range projects {
		if p != "" {
			filter[p] = true
		}
	}

	b.mu.Lock()
	b.subs[id] = &subscriber{id: id, sink: sink, projects: filter}
	count := len(b.subs)
	b.mu.Unlock()

	subscribersGauge.Set(float64(count))
	slog.Debug("live subscriber connected", "subscriber_id", id, "filtered", len(filter) > 0)

	return id, nil
}

// Unsubscribe removes a subscriber. Safe to call for an already-pruned id.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	count := len(b.subs)
	b.mu.Unlock()

	if ok {
		subscribersGauge.Set(float64(count))
		slog.Debug("live subscriber disconnected", "subscriber_id", id)
	}
}

// Broadcast delivers the event to every subscriber whose filter matches.
// Failed sinks are pruned; the caller never sees delivery errors.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.RLock()
	snapshot := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		snapshot = append(snapshot, s)
	}
	b.mu.RUnlock()

	var dead []string
	for _, s := range snapshot {
		if event.Project != "" && len(s.projects) > 0 && !s.projects[event.Project] {
			continue
		}
		if err := s.sink.Send(event); err != nil {
			slog.Debug("pruning dead subscriber",
				"subscriber_id", s.id,
				"error", err,
			)
			dead = append(dead, s.id)
			continue
		}
		recordEventDelivered(string(event.Type))
	}

	for _, id := range dead {
		b.Unsubscribe(id)
		recordSubscriberPruned()
	}
}

// Count returns the number of connected subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) heartbeatLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.Broadcast(Event{Type: EventPing})
		}
	}
}
