// Package supabase polls Supabase project health.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.supabase.com/v1"

// Config holds Supabase client configuration.
type Config struct {
	AccessToken    string
	BaseURL        string
	RequestTimeout time.Duration
	RatePerSecond  float64
}

// Client polls the Supabase management API. A Supabase project is a
// multi-aspect service: database and auth health are tracked separately,
// under the "db" and "auth" aspects.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Supabase client. With no access token configured
// every fetch reports no data.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 8 * time.Second
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = 2
	}

	if cfg.AccessToken == "" {
		slog.Warn("supabase access token not configured, supabase polling disabled")
	}

	return &Client{
		token:   cfg.AccessToken,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
	}
}

// Provider returns the provider identifier.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderSupabase
}

type serviceHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Fetch returns database and auth health for the target's Supabase project.
func (c *Client) Fetch(ctx context.Context, target registry.Target) (*provider.State, error) {
	sb := target.Service.Config.Supabase
	if c.token == "" || sb == nil {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/projects/%s/health?services=db,auth", c.baseURL, sb.ProjectRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("supabase request failed", "project_ref", sb.ProjectRef, "error", err)
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("supabase returned non-ok", "project_ref", sb.ProjectRef, "status", resp.StatusCode)
		return nil, nil
	}

	var services []serviceHealth
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		slog.Debug("supabase response decode failed", "project_ref", sb.ProjectRef, "error", err)
		return nil, nil
	}

	if len(services) == 0 {
		return nil, nil
	}

	state := &provider.State{}
	for _, svc := range services {
		state.Observations = append(state.Observations, provider.Observation{
			Aspect:  svc.Name,
			Status:  status.NormalizeSupabaseHealth(svc.Status),
			Message: fmt.Sprintf("%s: %s", svc.Name, svc.Status),
			Meta: map[string]any{
				"project_ref": sb.ProjectRef,
				"component":   svc.Name,
			},
		})
	}

	return state, nil
}
