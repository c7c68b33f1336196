package poller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jaslr/orchon/internal/alerts"
	"github.com/jaslr/orchon/internal/config"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	"github.com/jaslr/orchon/internal/live"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns one prepared state per Fetch call, then repeats the
// last one.
type scriptedClient struct {
	provider domain.Provider
	states   []*provider.State
	errs     []error
	calls    int
}

func (c *scriptedClient) Provider() domain.Provider {
	return c.provider
}

func (c *scriptedClient) Fetch(_ context.Context, _ registry.Target) (*provider.State, error) {
	i := c.calls
	if i >= len(c.states) {
		i = len(c.states) - 1
	}
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return c.states[i], nil
}

type recordingStore struct {
	history.Store

	mu          sync.Mutex
	checks      []domain.StatusCheck
	deployments []domain.Deployment
	uptime      []domain.UptimeCheck
	alerts      []domain.Alert
	checkErr    error
}

func (s *recordingStore) InsertStatusCheck(_ context.Context, check domain.StatusCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkErr != nil {
		return s.checkErr
	}
	s.checks = append(s.checks, check)
	return nil
}

func (s *recordingStore) UpsertDeployment(_ context.Context, d domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deployments = append(s.deployments, d)
	return nil
}

func (s *recordingStore) InsertUptimeCheck(_ context.Context, check domain.UptimeCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uptime = append(s.uptime, check)
	return nil
}

func (s *recordingStore) InsertAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

type collectSink struct {
	mu     sync.Mutex
	events []live.Event
}

func (s *collectSink) Send(event live.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) byType(t live.EventType) []live.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []live.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func flyRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := &config.Config{
		Projects: []config.ProjectConfig{{
			ID:   "p1",
			Name: "Project One",
			Services: []config.ServiceConfig{{
				ID:       "s1",
				Category: domain.CategoryHosting,
				Provider: domain.ProviderFly,
				Fly:      &domain.FlyConfig{App: "app-one"},
			}},
		}},
	}
	reg, err := registry.New(cfg)
	require.NoError(t, err)
	return reg
}

func observation(s domain.HealthStatus) *provider.State {
	return &provider.State{
		Observations: []provider.Observation{{Status: s, Message: string(s)}},
	}
}

func newTestCycle(t *testing.T, reg *registry.Registry, client provider.Client, store *recordingStore) (*Cycle, *collectSink) {
	t.Helper()

	b := live.NewBroadcaster()
	sink := &collectSink{}
	_, err := b.Subscribe(sink, nil)
	require.NoError(t, err)

	renderer, err := alerts.NewRenderer()
	require.NoError(t, err)
	dispatcher := alerts.NewDispatcher(reg, store, b, nil, renderer)

	return NewCycle(reg, client, store, status.NewTracker(), b, dispatcher, 4), sink
}

func TestCycle_FiveCycleTransitionScenario(t *testing.T) {
	reg := flyRegistry(t)
	client := &scriptedClient{
		provider: domain.ProviderFly,
		states: []*provider.State{
			observation(domain.StatusHealthy),
			observation(domain.StatusHealthy),
			observation(domain.StatusDown),
			observation(domain.StatusDown),
			observation(domain.StatusHealthy),
		},
	}
	store := &recordingStore{}
	cycle, sink := newTestCycle(t, reg, client, store)

	for i := 0; i < 5; i++ {
		cycle.Run(context.Background())
	}

	// Every cycle persists a check; only the two transitions broadcast.
	assert.Len(t, store.checks, 5)
	statusEvents := sink.byType(live.EventStatus)
	require.Len(t, statusEvents, 2)

	// The healthy-to-down transition alerts once; recovery does not.
	require.Len(t, store.alerts, 1)
	assert.Equal(t, domain.AlertDown, store.alerts[0].Type)
	assert.Len(t, sink.byType(live.EventAlert), 1)
}

func TestCycle_FirstObservationDoesNotBroadcast(t *testing.T) {
	reg := flyRegistry(t)
	client := &scriptedClient{
		provider: domain.ProviderFly,
		states:   []*provider.State{observation(domain.StatusDown)},
	}
	store := &recordingStore{}
	cycle, sink := newTestCycle(t, reg, client, store)

	cycle.Run(context.Background())

	assert.Len(t, store.checks, 1)
	assert.Empty(t, sink.byType(live.EventStatus))
	assert.Empty(t, store.alerts)
}

func TestCycle_NoDataCyclesAreInvisible(t *testing.T) {
	reg := flyRegistry(t)
	client := &scriptedClient{
		provider: domain.ProviderFly,
		states: []*provider.State{
			observation(domain.StatusHealthy),
			nil,
			nil,
			observation(domain.StatusHealthy),
		},
	}
	store := &recordingStore{}
	cycle, sink := newTestCycle(t, reg, client, store)

	for i := 0; i < 4; i++ {
		cycle.Run(context.Background())
	}

	// Two real observations, no transitions, nothing broadcast.
	assert.Len(t, store.checks, 2)
	assert.Empty(t, sink.byType(live.EventStatus))
}

func TestCycle_FetchErrorIsContained(t *testing.T) {
	reg := flyRegistry(t)
	client := &scriptedClient{
		provider: domain.ProviderFly,
		states:   []*provider.State{nil, observation(domain.StatusHealthy)},
		errs:     []error{errors.New("boom")},
	}
	store := &recordingStore{}
	cycle, _ := newTestCycle(t, reg, client, store)

	cycle.Run(context.Background())
	cycle.Run(context.Background())

	assert.Len(t, store.checks, 1)
}

func TestCycle_PersistenceFailureStillBroadcasts(t *testing.T) {
	reg := flyRegistry(t)
	client := &scriptedClient{
		provider: domain.ProviderFly,
		states: []*provider.State{
			observation(domain.StatusHealthy),
			observation(domain.StatusDown),
		},
	}
	store := &recordingStore{checkErr: errors.New("db gone")}
	cycle, sink := newTestCycle(t, reg, client, store)

	cycle.Run(context.Background())
	cycle.Run(context.Background())

	assert.Empty(t, store.checks)
	require.Len(t, sink.byType(live.EventStatus), 1)
}

func TestCycle_DeploymentsUpsertEveryCycle(t *testing.T) {
	reg := flyRegistry(t)
	state := observation(domain.StatusHealthy)
	state.Deployments = []domain.Deployment{{
		ID:        "gh-1",
		ServiceID: "s1",
		Provider:  domain.ProviderGitHub,
		Status:    domain.DeploySuccess,
	}}
	client := &scriptedClient{provider: domain.ProviderFly, states: []*provider.State{state}}
	store := &recordingStore{}
	cycle, _ := newTestCycle(t, reg, client, store)

	cycle.Run(context.Background())
	cycle.Run(context.Background())
	cycle.Run(context.Background())

	// The same run is upserted on every cycle, independent of transitions.
	assert.Len(t, store.deployments, 3)
}

func TestCycle_UptimeSamplePersistedEveryCycle(t *testing.T) {
	reg := flyRegistry(t)
	state := observation(domain.StatusHealthy)
	state.Uptime = &domain.UptimeCheck{ServiceID: "s1", Up: true}
	client := &scriptedClient{provider: domain.ProviderFly, states: []*provider.State{state}}
	store := &recordingStore{}
	cycle, _ := newTestCycle(t, reg, client, store)

	cycle.Run(context.Background())
	cycle.Run(context.Background())

	assert.Len(t, store.uptime, 2)
	assert.Len(t, store.checks, 2)
}
