package recovery

import (
	"context"
	"testing"

	"github.com/jaslr/orchon/internal/config"
	"github.com/jaslr/orchon/internal/domain"
	historymemory "github.com/jaslr/orchon/internal/history/memory"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *registry.Registry {
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
		Actions: []config.ActionConfig{{
			ID:        "restart-api",
			ProjectID: "p1",
			Label:     "Restart API host",
			Type:      domain.ActionSSHCommand,
			SSH: &domain.SSHActionConfig{
				Host:    "host.invalid",
				User:    "deploy",
				KeyPath: "/nonexistent/key",
				Command: "systemctl restart api",
			},
		}},
	}
	reg, err := registry.New(cfg)
	require.NoError(t, err)
	return reg
}

func TestService_ExecuteUnknownAction(t *testing.T) {
	svc := NewService(testRegistry(t), historymemory.NewStore(), Config{})

	_, err := svc.Execute(context.Background(), "ghost")
	assert.ErrorIs(t, err, registry.ErrActionNotFound)
}

func TestService_ExecuteRejectsConcurrentRun(t *testing.T) {
	svc := NewService(testRegistry(t), historymemory.NewStore(), Config{})

	require.NoError(t, svc.acquire("restart-api"))
	defer svc.release("restart-api")

	_, err := svc.Execute(context.Background(), "restart-api")
	assert.ErrorIs(t, err, ErrExecutionInProgress)
}

func TestService_ExecutorFailureIsRecordedNotReturned(t *testing.T) {
	store := historymemory.NewStore()
	svc := NewService(testRegistry(t), store, Config{})

	// The key path does not exist, so the ssh executor fails fast.
	exec, err := svc.Execute(context.Background(), "restart-api")
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionFailure, exec.Status)
	assert.Contains(t, exec.Output, "read key")
	require.NotNil(t, exec.FinishedAt)

	// The slot is released: a second run is allowed again.
	exec2, err := svc.Execute(context.Background(), "restart-api")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailure, exec2.Status)

	execs, err := svc.Executions(context.Background(), "restart-api", 10)
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}

func TestService_ExecutionsUnknownAction(t *testing.T) {
	svc := NewService(testRegistry(t), historymemory.NewStore(), Config{})

	_, err := svc.Executions(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, registry.ErrActionNotFound)
}
