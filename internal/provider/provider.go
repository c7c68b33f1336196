// Package provider defines the contract between the poll engine and the
// platform clients.
package provider

import (
	"context"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/registry"
)

// Observation is one normalized health reading. Aspect distinguishes the
// monitored facets of a multi-aspect service (e.g. a managed database's
// "db" and "auth" components); it is empty for single-aspect services.
type Observation struct {
	Aspect  string
	Status  domain.HealthStatus
	Message string
	Meta    map[string]any
}

// State is everything a client observed for one target in one cycle.
type State struct {
	Observations []Observation
	Deployments  []domain.Deployment
	Uptime       *domain.UptimeCheck
}

// Client fetches the latest observable state for a target.
//
// A (nil, nil) return means "no data available this cycle": the provider was
// unreachable, unconfigured or rate limited. Missing data is distinct from
// confirmed failure and must never be mapped to down. Clients return errors
// only for unexpected conditions; the poll engine catches them at the cycle
// boundary.
type Client interface {
	Provider() domain.Provider
	Fetch(ctx context.Context, target registry.Target) (*State, error)
}
