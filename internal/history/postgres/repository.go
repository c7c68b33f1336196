// Package postgres provides the PostgreSQL implementation of the history store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
)

// Repository implements history.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// InsertStatusCheck appends one status observation.
func (r *Repository) InsertStatusCheck(ctx context.Context, check domain.StatusCheck) error {
	query := `
		INSERT INTO status_checks (service_id, status, message, checked_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query,
		check.ServiceID,
		check.Status,
		check.Message,
		check.CheckedAt,
	); err != nil {
		return fmt.Errorf("insert status check: %w", err)
	}
	return nil
}

// UpsertDeployment inserts or updates a deployment by its provider run id.
func (r *Repository) UpsertDeployment(ctx context.Context, d domain.Deployment) error {
	query := `
		INSERT INTO deployments (
			id, service_id, provider, status, commit_sha, branch, run_url,
			pushed_at, ci_started_at, ci_completed_at, deploy_started_at, deployed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status            = EXCLUDED.status,
			commit_sha        = EXCLUDED.commit_sha,
			branch            = EXCLUDED.branch,
			run_url           = EXCLUDED.run_url,
			pushed_at         = COALESCE(EXCLUDED.pushed_at, deployments.pushed_at),
			ci_started_at     = COALESCE(EXCLUDED.ci_started_at, deployments.ci_started_at),
			ci_completed_at   = COALESCE(EXCLUDED.ci_completed_at, deployments.ci_completed_at),
			deploy_started_at = COALESCE(EXCLUDED.deploy_started_at, deployments.deploy_started_at),
			deployed_at       = COALESCE(EXCLUDED.deployed_at, deployments.deployed_at)
	`
	if _, err := r.db.Exec(ctx, query,
		d.ID,
		d.ServiceID,
		d.Provider,
		d.Status,
		d.CommitSHA,
		d.Branch,
		d.RunURL,
		d.PushedAt,
		d.CIStartedAt,
		d.CICompletedAt,
		d.DeployStartedAt,
		d.DeployedAt,
	); err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}
	return nil
}

// InsertUptimeCheck appends one uptime probe sample.
func (r *Repository) InsertUptimeCheck(ctx context.Context, check domain.UptimeCheck) error {
	query := `
		INSERT INTO uptime_checks (service_id, response_time_ms, status_code, up, error, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.Exec(ctx, query,
		check.ServiceID,
		check.ResponseTime.Milliseconds(),
		check.StatusCode,
		check.Up,
		check.Error,
		check.CheckedAt,
	); err != nil {
		return fmt.Errorf("insert uptime check: %w", err)
	}
	return nil
}

// InsertAlert appends one dispatched-alert record.
func (r *Repository) InsertAlert(ctx context.Context, alert domain.Alert) error {
	query := `
		INSERT INTO alerts (project_id, service_id, type, message, channel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.Exec(ctx, query,
		alert.ProjectID,
		alert.ServiceID,
		alert.Type,
		alert.Message,
		alert.Channel,
		alert.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// InsertCostEntry appends one aggregate cost sample.
func (r *Repository) InsertCostEntry(ctx context.Context, entry domain.CostEntry) error {
	query := `
		INSERT INTO cost_entries (project_id, provider, amount_usd, period, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query,
		entry.ProjectID,
		entry.Provider,
		entry.AmountUSD,
		entry.Period,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	return nil
}

// CreateExecution records the start of a recovery action run.
func (r *Repository) CreateExecution(ctx context.Context, exec domain.ActionExecution) error {
	query := `
		INSERT INTO action_executions (id, action_id, status, output, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query,
		exec.ID,
		exec.ActionID,
		exec.Status,
		exec.Output,
		exec.StartedAt,
	); err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// FinishExecution records the outcome of a recovery action run.
func (r *Repository) FinishExecution(ctx context.Context, id string, status domain.ExecutionStatus, output string, finishedAt time.Time) error {
	query := `
		UPDATE action_executions
		SET status = $2, output = $3, finished_at = $4
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, output, finishedAt)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return history.ErrNotFound
	}
	return nil
}

// LatestStatuses returns the most recent status check per service.
func (r *Repository) LatestStatuses(ctx context.Context) ([]domain.StatusCheck, error) {
	query := `
		SELECT DISTINCT ON (service_id) service_id, status, message, checked_at
		FROM status_checks
		ORDER BY service_id, checked_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest statuses: %w", err)
	}
	defer rows.Close()

	var checks []domain.StatusCheck
	for rows.Next() {
		var c domain.StatusCheck
		if err := rows.Scan(&c.ServiceID, &c.Status, &c.Message, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan status check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// StatusHistory returns status checks within the window, newest first.
func (r *Repository) StatusHistory(ctx context.Context, serviceIDs []string, w history.Window) ([]domain.StatusCheck, error) {
	query := `
		SELECT service_id, status, message, checked_at
		FROM status_checks
		WHERE service_id = ANY($1) AND checked_at >= $2 AND checked_at <= $3
		ORDER BY checked_at DESC
	`
	rows, err := r.db.Query(ctx, query, serviceIDs, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("status history: %w", err)
	}
	defer rows.Close()

	var checks []domain.StatusCheck
	for rows.Next() {
		var c domain.StatusCheck
		if err := rows.Scan(&c.ServiceID, &c.Status, &c.Message, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan status check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// RecentDeployments returns the newest deployments, newest first.
func (r *Repository) RecentDeployments(ctx context.Context, serviceIDs []string, limit int) ([]domain.Deployment, error) {
	query := `
		SELECT
			id, service_id, provider, status, commit_sha, branch, run_url,
			pushed_at, ci_started_at, ci_completed_at, deploy_started_at, deployed_at
		FROM deployments
		WHERE service_id = ANY($1)
		ORDER BY COALESCE(ci_started_at, pushed_at, deploy_started_at) DESC NULLS LAST
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, serviceIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("recent deployments: %w", err)
	}
	defer rows.Close()

	var deployments []domain.Deployment
	for rows.Next() {
		var d domain.Deployment
		if err := rows.Scan(
			&d.ID,
			&d.ServiceID,
			&d.Provider,
			&d.Status,
			&d.CommitSHA,
			&d.Branch,
			&d.RunURL,
			&d.PushedAt,
			&d.CIStartedAt,
			&d.CICompletedAt,
			&d.DeployStartedAt,
			&d.DeployedAt,
		); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}

// UptimeHistory returns uptime samples within the window, newest first.
func (r *Repository) UptimeHistory(ctx context.Context, serviceIDs []string, w history.Window) ([]domain.UptimeCheck, error) {
	query := `
		SELECT service_id, response_time_ms, status_code, up, error, checked_at
		FROM uptime_checks
		WHERE service_id = ANY($1) AND checked_at >= $2 AND checked_at <= $3
		ORDER BY checked_at DESC
	`
	rows, err := r.db.Query(ctx, query, serviceIDs, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("uptime history: %w", err)
	}
	defer rows.Close()

	var checks []domain.UptimeCheck
	for rows.Next() {
		var c domain.UptimeCheck
		var ms int64
		if err := rows.Scan(&c.ServiceID, &ms, &c.StatusCode, &c.Up, &c.Error, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan uptime check: %w", err)
		}
		c.ResponseTime = time.Duration(ms) * time.Millisecond
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// RecentAlerts returns the newest alerts, newest first.
func (r *Repository) RecentAlerts(ctx context.Context, projectID string, limit int) ([]domain.Alert, error) {
	query := `
		SELECT id, project_id, service_id, type, message, channel, created_at
		FROM alerts
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.ServiceID, &a.Type, &a.Message, &a.Channel, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// RecentCosts returns the newest cost entries for a project, newest first.
func (r *Repository) RecentCosts(ctx context.Context, projectID string, limit int) ([]domain.CostEntry, error) {
	query := `
		SELECT id, project_id, provider, amount_usd, period, created_at
		FROM cost_entries
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent costs: %w", err)
	}
	defer rows.Close()

	var entries []domain.CostEntry
	for rows.Next() {
		var e domain.CostEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Provider, &e.AmountUSD, &e.Period, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentExecutions returns the newest executions of an action, newest first.
func (r *Repository) RecentExecutions(ctx context.Context, actionID string, limit int) ([]domain.ActionExecution, error) {
	query := `
		SELECT id, action_id, status, output, started_at, finished_at
		FROM action_executions
		WHERE action_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, actionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.ActionExecution
	for rows.Next() {
		var e domain.ActionExecution
		if err := rows.Scan(&e.ID, &e.ActionID, &e.Status, &e.Output, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}
