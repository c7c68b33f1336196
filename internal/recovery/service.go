// Package recovery executes operator-declared remediation actions.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	"github.com/jaslr/orchon/internal/registry"
)

// ErrExecutionInProgress is returned when the action already has a running
// execution.
var ErrExecutionInProgress = errors.New("execution already in progress")

// Config holds recovery service configuration.
type Config struct {
	GitHubToken string
	FlyToken    string
	DialTimeout time.Duration
}

// Service runs recovery actions and records their executions. At most one
// execution per action may be in flight at a time.
type Service struct {
	registry *registry.Registry
	store    history.Store

	ssh      *sshExecutor
	fly      *flyExecutor
	workflow *workflowExecutor

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService creates a recovery service.
func NewService(reg *registry.Registry, store history.Store, cfg Config) *Service {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Service{
		registry: reg,
		store:    store,
		ssh:      &sshExecutor{dialTimeout: cfg.DialTimeout},
		fly:      newFlyExecutor(cfg.FlyToken),
		workflow: newWorkflowExecutor(cfg.GitHubToken),
		inFlight: make(map[string]struct{}),
	}
}

// Execute runs the action synchronously and returns the finished execution.
// A second call for the same action while one is running fails with
// ErrExecutionInProgress. Executor failures are recorded on the execution
// row, not returned: the caller gets a failure-status execution and a nil
// error.
func (s *Service) Execute(ctx context.Context, actionID string) (domain.ActionExecution, error) {
	action, err := s.registry.Action(actionID)
	if err != nil {
		return domain.ActionExecution{}, err
	}

	if err := s.acquire(actionID); err != nil {
		return domain.ActionExecution{}, err
	}
	defer s.release(actionID)

	exec := domain.ActionExecution{
		ID:        uuid.NewString(),
		ActionID:  actionID,
		Status:    domain.ExecutionRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return domain.ActionExecution{}, fmt.Errorf("create execution: %w", err)
	}

	slog.Info("recovery action started",
		"action_id", actionID,
		"execution_id", exec.ID,
		"type", action.Type,
	)

	output, runErr := s.run(ctx, action)

	finishedAt := time.Now().UTC()
	exec.FinishedAt = &finishedAt
	if runErr != nil {
		exec.Status = domain.ExecutionFailure
		exec.Output = runErr.Error()
		slog.Error("recovery action failed",
			"action_id", actionID,
			"execution_id", exec.ID,
			"error", runErr,
		)
	} else {
		exec.Status = domain.ExecutionSuccess
		exec.Output = output
		slog.Info("recovery action finished",
			"action_id", actionID,
			"execution_id", exec.ID,
			"duration", finishedAt.Sub(exec.StartedAt),
		)
	}
	recordExecution(string(action.Type), string(exec.Status))

	if err := s.store.FinishExecution(ctx, exec.ID, exec.Status, exec.Output, finishedAt); err != nil {
		return domain.ActionExecution{}, fmt.Errorf("finish execution: %w", err)
	}

	return exec, nil
}

// Executions returns recent executions of the action, newest first.
func (s *Service) Executions(ctx context.Context, actionID string, limit int) ([]domain.ActionExecution, error) {
	if _, err := s.registry.Action(actionID); err != nil {
		return nil, err
	}
	return s.store.RecentExecutions(ctx, actionID, limit)
}

func (s *Service) acquire(actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.inFlight[actionID]; running {
		return ErrExecutionInProgress
	}
	s.inFlight[actionID] = struct{}{}
	return nil
}

func (s *Service) release(actionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, actionID)
}

func (s *Service) run(ctx context.Context, action *domain.RecoveryAction) (string, error) {
	switch action.Type {
	case domain.ActionSSHCommand:
		return s.ssh.Run(ctx, action.Config.SSH)
	case domain.ActionFlyRestart:
		return s.fly.Run(ctx, action.Config.Fly)
	case domain.ActionWorkflowDispatch:
		return s.workflow.Run(ctx, action.Config.Workflow)
	default:
		return "", fmt.Errorf("unsupported action type %q", action.Type)
	}
}
