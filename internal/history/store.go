// Package history defines the durable store for status checks, deployments,
// uptime samples, alerts, cost entries and action executions.
//
// History is append-mostly: the core never deletes rows, and deployments are
// the only records updated in place (upsert by provider run id). Retention is
// an external concern.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/jaslr/orchon/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Window bounds a time-series query.
type Window struct {
	From time.Time
	To   time.Time
}

// Store persists and queries monitoring history.
//
// Write failures are expected during provider or database hiccups; callers
// log them and carry on, because the live broadcast is the primary
// user-facing signal and must not depend on a successful write.
type Store interface {
	// InsertStatusCheck appends one status observation.
	InsertStatusCheck(ctx context.Context, check domain.StatusCheck) error

	// UpsertDeployment inserts a deployment or, when the id already exists,
	// updates its mutable fields (status, timestamps) last-write-wins.
	UpsertDeployment(ctx context.Context, d domain.Deployment) error

	// InsertUptimeCheck appends one uptime probe sample.
	InsertUptimeCheck(ctx context.Context, check domain.UptimeCheck) error

	// InsertAlert appends one dispatched-alert record.
	InsertAlert(ctx context.Context, alert domain.Alert) error

	// InsertCostEntry appends one aggregate cost sample.
	InsertCostEntry(ctx context.Context, entry domain.CostEntry) error

	// CreateExecution records the start of a recovery action run.
	CreateExecution(ctx context.Context, exec domain.ActionExecution) error

	// FinishExecution records the outcome of a recovery action run.
	FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output string, finishedAt time.Time) error

	// LatestStatuses returns the most recent status check per service.
	LatestStatuses(ctx context.Context) ([]domain.StatusCheck, error)

	// StatusHistory returns status checks for the given services within the
	// window, newest first.
	StatusHistory(ctx context.Context, serviceIDs []string, w Window) ([]domain.StatusCheck, error)

	// RecentDeployments returns the newest deployments for the given
	// services, newest first, capped at limit.
	RecentDeployments(ctx context.Context, serviceIDs []string, limit int) ([]domain.Deployment, error)

	// UptimeHistory returns uptime samples for the given services within the
	// window, newest first.
	UptimeHistory(ctx context.Context, serviceIDs []string, w Window) ([]domain.UptimeCheck, error)

	// RecentAlerts returns the newest alerts, optionally filtered by
	// project, newest first, capped at limit.
	RecentAlerts(ctx context.Context, projectID string, limit int) ([]domain.Alert, error)

	// RecentCosts returns the newest cost entries for a project, newest
	// first, capped at limit.
	RecentCosts(ctx context.Context, projectID string, limit int) ([]domain.CostEntry, error)

	// RecentExecutions returns the newest executions of an action, newest
	// first, capped at limit.
	RecentExecutions(ctx context.Context, actionID string, limit int) ([]domain.ActionExecution, error)
}
