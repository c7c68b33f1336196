// Package memory provides an in-memory history store used when the database
// is unreachable at startup. Checks still run and broadcast in this mode;
// only durability is lost. Each log is capped so a long-running degraded
// process does not grow without bound.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
)

const maxEntries = 1000

// Store implements history.Store with capped in-memory slices.
type Store struct {
	mu            sync.RWMutex
	statusChecks  []domain.StatusCheck
	deployments   map[string]domain.Deployment
	uptimeChecks  []domain.UptimeCheck
	alerts        []domain.Alert
	costs         []domain.CostEntry
	executions    map[string]domain.ActionExecution
	executionList []string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		deployments: make(map[string]domain.Deployment),
		executions:  make(map[string]domain.ActionExecution),
	}
}

// InsertStatusCheck appends one status observation.
func (s *Store) InsertStatusCheck(_ context.Context, check domain.StatusCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusChecks = appendCapped(s.statusChecks, check)
	return nil
}

// UpsertDeployment inserts or updates a deployment by id.
func (s *Store) UpsertDeployment(_ context.Context, d domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.deployments[d.ID]; ok {
		existing.Status = d.Status
		existing.CommitSHA = d.CommitSHA
		existing.Branch = d.Branch
		existing.RunURL = d.RunURL
		existing.PushedAt = coalesce(d.PushedAt, existing.PushedAt)
		existing.CIStartedAt = coalesce(d.CIStartedAt, existing.CIStartedAt)
		existing.CICompletedAt = coalesce(d.CICompletedAt, existing.CICompletedAt)
		existing.DeployStartedAt = coalesce(d.DeployStartedAt, existing.DeployStartedAt)
		existing.DeployedAt = coalesce(d.DeployedAt, existing.DeployedAt)
		s.deployments[d.ID] = existing
		return nil
	}

	s.deployments[d.ID] = d
	return nil
}

// InsertUptimeCheck appends one uptime probe sample.
func (s *Store) InsertUptimeCheck(_ context.Context, check domain.UptimeCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uptimeChecks = appendCapped(s.uptimeChecks, check)
	return nil
}

// InsertAlert appends one dispatched-alert record.
func (s *Store) InsertAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	s.alerts = appendCapped(s.alerts, alert)
	return nil
}

// InsertCostEntry appends one aggregate cost sample.
func (s *Store) InsertCostEntry(_ context.Context, entry domain.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.costs = appendCapped(s.costs, entry)
	return nil
}

// CreateExecution records the start of a recovery action run.
func (s *Store) CreateExecution(_ context.Context, exec domain.ActionExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = exec
	s.executionList = append(s.executionList, exec.ID)
	return nil
}

// FinishExecution records the outcome of a recovery action run.
func (s *Store) FinishExecution(_ context.Context, id string, status domain.ExecutionStatus, output string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return history.ErrNotFound
	}
	exec.Status = status
	exec.Output = output
	exec.FinishedAt = &finishedAt
	s.executions[id] = exec
	return nil
}

// LatestStatuses returns the most recent status check per service.
func (s *Store) LatestStatuses(_ context.Context) ([]domain.StatusCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]domain.StatusCheck)
	for _, c := range s.statusChecks {
		if prev, ok := latest[c.ServiceID]; !ok || c.CheckedAt.After(prev.CheckedAt) {
			latest[c.ServiceID] = c
		}
	}

	out := make([]domain.StatusCheck, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out, nil
}

// StatusHistory returns status checks within the window, newest first.
func (s *Store) StatusHistory(_ context.Context, serviceIDs []string, w history.Window) ([]domain.StatusCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := toSet(serviceIDs)
	var out []domain.StatusCheck
	for _, c := range s.statusChecks {
		if ids[c.ServiceID] && inWindow(c.CheckedAt, w) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	return out, nil
}

// RecentDeployments returns the newest deployments, newest first.
func (s *Store) RecentDeployments(_ context.Context, serviceIDs []string, limit int) ([]domain.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := toSet(serviceIDs)
	var out []domain.Deployment
	for _, d := range s.deployments {
		if ids[d.ServiceID] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return deployTime(out[i]).After(deployTime(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UptimeHistory returns uptime samples within the window, newest first.
func (s *Store) UptimeHistory(_ context.Context, serviceIDs []string, w history.Window) ([]domain.UptimeCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := toSet(serviceIDs)
	var out []domain.UptimeCheck
	for _, c := range s.uptimeChecks {
		if ids[c.ServiceID] && inWindow(c.CheckedAt, w) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	return out, nil
}

// RecentAlerts returns the newest alerts, newest first.
func (s *Store) RecentAlerts(_ context.Context, projectID string, limit int) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Alert
	for _, a := range s.alerts {
		if projectID == "" || a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentCosts returns the newest cost entries for a project, newest first.
func (s *Store) RecentCosts(_ context.Context, projectID string, limit int) ([]domain.CostEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CostEntry
	for _, e := range s.costs {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentExecutions returns the newest executions of an action, newest first.
func (s *Store) RecentExecutions(_ context.Context, actionID string, limit int) ([]domain.ActionExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ActionExecution
	for i := len(s.executionList) - 1; i >= 0; i-- {
		exec := s.executions[s.executionList[i]]
		if exec.ActionID == actionID {
			out = append(out, exec)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func appendCapped[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > maxEntries {
		s = s[len(s)-maxEntries:]
	}
	return s
}

func coalesce(a, b *time.Time) *time.Time {
	if a != nil {
		return a
	}
	return b
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func inWindow(t time.Time, w history.Window) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

func deployTime(d domain.Deployment) time.Time {
	switch {
	case d.CIStartedAt != nil:
		return *d.CIStartedAt
	case d.PushedAt != nil:
		return *d.PushedAt
	case d.DeployStartedAt != nil:
		return *d.DeployStartedAt
	default:
		return time.Time{}
	}
}
