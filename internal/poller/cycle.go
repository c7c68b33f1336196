// Package poller drives the recurring per-provider poll cycles.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaslr/orchon/internal/alerts"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	"github.com/jaslr/orchon/internal/live"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
	"golang.org/x/sync/errgroup"
)

// Cycle runs one provider's poll pass over all matching targets. The same
// driver serves every provider; only the client differs.
type Cycle struct {
	registry    *registry.Registry
	client      provider.Client
	store       history.Store
	tracker     *status.Tracker
	broadcaster *live.Broadcaster
	alerts      *alerts.Dispatcher
	concurrency int
}

// NewCycle creates a poll cycle for one provider client.
func NewCycle(
	reg *registry.Registry,
	client provider.Client,
	store history.Store,
	tracker *status.Tracker,
	b *live.Broadcaster,
	dispatcher *alerts.Dispatcher,
	concurrency int,
) *Cycle {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Cycle{
		registry:    reg,
		client:      client,
		store:       store,
		tracker:     tracker,
		broadcaster: b,
		alerts:      dispatcher,
		concurrency: concurrency,
	}
}

// Provider returns the provider this cycle polls.
func (c *Cycle) Provider() domain.Provider {
	return c.client.Provider()
}

// Run performs one poll pass. Targets are polled with bounded fan-out so one
// slow project cannot stall the whole cycle; there is no ordering guarantee
// between targets. Run never returns an error: per-target failures are
// logged and contained.
func (c *Cycle) Run(ctx context.Context) {
	targets := c.registry.TargetsFor(c.client.Provider())
	if len(targets) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for _, target := range targets {
		g.Go(func() error {
			c.pollTarget(ctx, target)
			return nil
		})
	}

	_ = g.Wait()
}

func (c *Cycle) pollTarget(ctx context.Context, target registry.Target) {
	providerName := string(c.client.Provider())

	state, err := c.client.Fetch(ctx, target)
	if err != nil {
		slog.Error("provider fetch failed",
			"provider", providerName,
			"project_id", target.Project.ID,
			"service_id", target.Service.ID,
			"error", err,
		)
		return
	}
	if state == nil {
		// No data this cycle. Not a failure: the tracker keeps its previous
		// state and nothing is persisted.
		recordNoData(providerName)
		return
	}

	now := time.Now().UTC()

	if state.Uptime != nil {
		if err := c.store.InsertUptimeCheck(ctx, *state.Uptime); err != nil {
			slog.Error("persist uptime check",
				"service_id", target.Service.ID,
				"error", err,
			)
		}
	}

	// Deployment history captures every run, independent of transitions.
	for _, d := range state.Deployments {
		if err := c.store.UpsertDeployment(ctx, d); err != nil {
			slog.Error("upsert deployment",
				"deployment_id", d.ID,
				"service_id", d.ServiceID,
				"error", err,
			)
		}
	}

	for _, obs := range state.Observations {
		c.processObservation(ctx, target, obs, now)
	}
}

// processObservation persists the check, runs transition detection and, when
// a transition happened, broadcasts and evaluates the alert policy. A failed
// history write never suppresses the broadcast: the live event is the
// primary user-facing signal.
func (c *Cycle) processObservation(ctx context.Context, target registry.Target, obs provider.Observation, now time.Time) {
	providerName := string(c.client.Provider())
	key := status.Key(target.Service.ID, obs.Aspect)

	recordCheck(providerName, string(obs.Status))

	check := domain.StatusCheck{
		ServiceID: key,
		Status:    obs.Status,
		Message:   obs.Message,
		CheckedAt: now,
	}
	if err := c.store.InsertStatusCheck(ctx, check); err != nil {
		slog.Error("persist status check",
			"service_id", key,
			"error", err,
		)
	}

	observation := c.tracker.Observe(key, obs.Status)
	if !observation.Changed {
		return
	}

	slog.Info("status transition",
		"provider", providerName,
		"project_id", target.Project.ID,
		"service_id", key,
		"previous", observation.Previous,
		"status", obs.Status,
	)

	data := map[string]any{
		"service_id": key,
		"provider":   providerName,
		"status":     obs.Status,
		"previous":   observation.Previous,
		"message":    obs.Message,
		"timestamp":  now.Format(time.RFC3339),
	}
	for k, v := range obs.Meta {
		data[k] = v
	}

	c.broadcaster.Broadcast(live.Event{
		Type:    eventTypeFor(c.client.Provider()),
		Project: target.Project.ID,
		Data:    data,
	})

	if alertType, ok := alerts.Evaluate(target.Service.Category, observation, obs.Status); ok {
		c.alerts.Dispatch(ctx, alerts.Input{
			ProjectID: target.Project.ID,
			ServiceID: key,
			Type:      alertType,
			Message:   alertMessage(target, obs, observation.Previous),
		})
	}
}

// eventTypeFor picks the live event type for a provider's transitions.
// Build-oriented providers surface as deployment events, the direct HTTP
// prober as uptime, everything else as plain status.
func eventTypeFor(p domain.Provider) live.EventType {
	switch p {
	case domain.ProviderGitHub, domain.ProviderNetlify:
		return live.EventDeployment
	case domain.ProviderUptime:
		return live.EventUptime
	default:
		return live.EventStatus
	}
}

func alertMessage(target registry.Target, obs provider.Observation, previous domain.HealthStatus) string {
	label := target.Service.Label
	if label == "" {
		label = target.Service.ID
	}
	return fmt.Sprintf("%s is %s (was %s): %s", label, obs.Status, previous, obs.Message)
}
