package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(minute int) time.Time {
	return time.Date(2026, 8, 1, 12, minute, 0, 0, time.UTC)
}

func TestStore_LatestStatuses(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.InsertStatusCheck(ctx, domain.StatusCheck{ServiceID: "s1", Status: domain.StatusHealthy, CheckedAt: ts(0)}))
	require.NoError(t, s.InsertStatusCheck(ctx, domain.StatusCheck{ServiceID: "s1", Status: domain.StatusDown, CheckedAt: ts(1)}))
	require.NoError(t, s.InsertStatusCheck(ctx, domain.StatusCheck{ServiceID: "s2", Status: domain.StatusDegraded, CheckedAt: ts(0)}))

	latest, err := s.LatestStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, domain.StatusDown, latest[0].Status)
	assert.Equal(t, "s1", latest[0].ServiceID)
	assert.Equal(t, domain.StatusDegraded, latest[1].Status)
}

func TestStore_UpsertDeploymentIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	pushed := ts(0)
	require.NoError(t, s.UpsertDeployment(ctx, domain.Deployment{
		ID:        "gh-1",
		ServiceID: "s1",
		Status:    domain.DeployInProgress,
		PushedAt:  &pushed,
	}))

	// Second sighting of the same run: status advances, pushed_at is absent
	// in the update but must survive.
	completed := ts(5)
	require.NoError(t, s.UpsertDeployment(ctx, domain.Deployment{
		ID:            "gh-1",
		ServiceID:     "s1",
		Status:        domain.DeploySuccess,
		CICompletedAt: &completed,
	}))

	deployments, err := s.RecentDeployments(ctx, []string{"s1"}, 10)
	require.NoError(t, err)
	require.Len(t, deployments, 1)

	d := deployments[0]
	assert.Equal(t, domain.DeploySuccess, d.Status)
	require.NotNil(t, d.PushedAt)
	assert.Equal(t, pushed, *d.PushedAt)
	require.NotNil(t, d.CICompletedAt)
	assert.Equal(t, completed, *d.CICompletedAt)
}

func TestStore_StatusHistoryWindow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertStatusCheck(ctx, domain.StatusCheck{
			ServiceID: "s1",
			Status:    domain.StatusHealthy,
			CheckedAt: ts(i),
		}))
	}

	checks, err := s.StatusHistory(ctx, []string{"s1"}, history.Window{From: ts(1), To: ts(3)})
	require.NoError(t, err)
	require.Len(t, checks, 3)
	// Newest first
	assert.Equal(t, ts(3), checks[0].CheckedAt)
	assert.Equal(t, ts(1), checks[2].CheckedAt)
}

func TestStore_RecentAlertsFilterAndLimit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertAlert(ctx, domain.Alert{
			ProjectID: "p1",
			Type:      domain.AlertDown,
			Channel:   domain.ChannelUI,
			CreatedAt: ts(i),
		}))
	}
	require.NoError(t, s.InsertAlert(ctx, domain.Alert{
		ProjectID: "p2",
		Type:      domain.AlertDegraded,
		Channel:   domain.ChannelUI,
		CreatedAt: ts(9),
	}))

	alerts, err := s.RecentAlerts(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, ts(2), alerts[0].CreatedAt)
	assert.NotEmpty(t, alerts[0].ID)

	all, err := s.RecentAlerts(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateExecution(ctx, domain.ActionExecution{
		ID:        "ex-1",
		ActionID:  "a1",
		Status:    domain.ExecutionRunning,
		StartedAt: ts(0),
	}))

	finished := ts(1)
	require.NoError(t, s.FinishExecution(ctx, "ex-1", domain.ExecutionSuccess, "restarted", finished))

	execs, err := s.RecentExecutions(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, domain.ExecutionSuccess, execs[0].Status)
	assert.Equal(t, "restarted", execs[0].Output)
	require.NotNil(t, execs[0].FinishedAt)

	err = s.FinishExecution(ctx, "ex-missing", domain.ExecutionFailure, "", finished)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestStore_StatusChecksAreCapped(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < maxEntries+10; i++ {
		require.NoError(t, s.InsertStatusCheck(ctx, domain.StatusCheck{
			ServiceID: "s1",
			Status:    domain.StatusHealthy,
			CheckedAt: time.Now().UTC(),
		}))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.statusChecks, maxEntries)
}
