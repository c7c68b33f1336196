package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaslr/orchon/internal/config"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	"github.com/jaslr/orchon/internal/live"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	history.Store

	mu        sync.Mutex
	alerts    []domain.Alert
	insertErr error
}

func (s *stubStore) InsertAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *stubStore) recorded() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert(nil), s.alerts...)
}

type stubSender struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (s *stubSender) Send(_ context.Context, to, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, to)
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

func testRegistry(t *testing.T, tier domain.AlertTier, alertEmail string) *registry.Registry {
	t.Helper()
	cfg := &config.Config{
		Projects: []config.ProjectConfig{{
			ID:         "p1",
			Name:       "Project One",
			Tier:       tier,
			AlertEmail: alertEmail,
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

func newTestDispatcher(t *testing.T, reg *registry.Registry, store history.Store, sender EmailSender) (*Dispatcher, *collectSink) {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)

	b := live.NewBroadcaster()
	sink := &collectSink{}
	_, err = b.Subscribe(sink, nil)
	require.NoError(t, err)

	return NewDispatcher(reg, store, b, sender, renderer), sink
}

func TestDispatcher_BusinessTierGetsUIAndEmailRows(t *testing.T) {
	reg := testRegistry(t, domain.TierBusiness, "ops@example.com")
	store := &stubStore{}
	sender := &stubSender{}
	d, sink := newTestDispatcher(t, reg, store, sender)

	d.Dispatch(context.Background(), Input{
		ProjectID: "p1",
		ServiceID: "s1",
		Type:      domain.AlertDown,
		Message:   "app-one is down",
	})

	alerts := store.recorded()
	require.Len(t, alerts, 2)
	assert.Equal(t, domain.ChannelUI, alerts[0].Channel)
	assert.Equal(t, domain.ChannelEmail, alerts[1].Channel)
	assert.Equal(t, domain.AlertDown, alerts[0].Type)
	assert.Equal(t, []string{"ops@example.com"}, sender.sent)

	broadcasts := sink.byType(live.EventAlert)
	require.Len(t, broadcasts, 1)
	assert.Equal(t, "p1", broadcasts[0].Project)
}

func TestDispatcher_HobbyTierIsUIOnly(t *testing.T) {
	reg := testRegistry(t, domain.TierHobby, "ops@example.com")
	store := &stubStore{}
	sender := &stubSender{}
	d, _ := newTestDispatcher(t, reg, store, sender)

	d.Dispatch(context.Background(), Input{
		ProjectID: "p1",
		ServiceID: "s1",
		Type:      domain.AlertDegraded,
		Message:   "slow",
	})

	alerts := store.recorded()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.ChannelUI, alerts[0].Channel)
	assert.Empty(t, sender.sent)
}

func TestDispatcher_NoEmailRowWhenSendFails(t *testing.T) {
	reg := testRegistry(t, domain.TierBusiness, "ops@example.com")
	store := &stubStore{}
	sender := &stubSender{sendErr: errors.New("smtp unreachable")}
	d, _ := newTestDispatcher(t, reg, store, sender)

	d.Dispatch(context.Background(), Input{
		ProjectID: "p1",
		ServiceID: "s1",
		Type:      domain.AlertDown,
		Message:   "down",
	})

	alerts := store.recorded()
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.ChannelUI, alerts[0].Channel)
}

func TestDispatcher_BusinessTierWithoutAddressIsUIOnly(t *testing.T) {
	reg := testRegistry(t, domain.TierBusiness, "")
	store := &stubStore{}
	sender := &stubSender{}
	d, _ := newTestDispatcher(t, reg, store, sender)

	d.Dispatch(context.Background(), Input{
		ProjectID: "p1",
		ServiceID: "s1",
		Type:      domain.AlertDown,
		Message:   "down",
	})

	require.Len(t, store.recorded(), 1)
	assert.Empty(t, sender.sent)
}

func TestDispatcher_UnknownProjectIsDropped(t *testing.T) {
	reg := testRegistry(t, domain.TierBusiness, "ops@example.com")
	store := &stubStore{}
	sender := &stubSender{}
	d, sink := newTestDispatcher(t, reg, store, sender)

	d.Dispatch(context.Background(), Input{
		ProjectID: "ghost",
		ServiceID: "s1",
		Type:      domain.AlertDown,
		Message:   "down",
	})

	assert.Empty(t, store.recorded())
	assert.Empty(t, sender.sent)
	assert.Empty(t, sink.byType(live.EventAlert))
}

func TestDispatcher_BroadcastSurvivesPersistenceFailure(t *testing.T) {
	reg := testRegistry(t, domain.TierHobby, "")
	store := &stubStore{insertErr: errors.New("db gone")}
	d, sink := newTestDispatcher(t, reg, store, nil)

	d.Dispatch(context.Background(), Input{
		ProjectID: "p1",
		ServiceID: "s1",
		Type:      domain.AlertDown,
		Message:   "down",
	})

	broadcasts := sink.byType(live.EventAlert)
	require.Len(t, broadcasts, 1)
}

func TestRenderer_Render(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	project := &domain.Project{ID: "p1", Name: "Project One"}
	subject, body := renderer.Render(project, Input{
		ProjectID: "p1",
		ServiceID: "s1",
		Type:      domain.AlertDeployFailure,
		Message:   "build 42 failed",
	}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	assert.Contains(t, subject, "Project One")
	assert.Contains(t, subject, "deploy_failure")
	assert.Contains(t, body, "build 42 failed")
}
