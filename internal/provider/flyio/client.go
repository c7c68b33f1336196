// Package flyio polls Fly.io machine state.
package flyio

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

const defaultBaseURL = "https://api.machines.dev/v1"

// Config holds Fly.io client configuration.
type Config struct {
	Token          string
	BaseURL        string
	RequestTimeout time.Duration
	RatePerSecond  float64
}

// Client polls the Fly.io Machines API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Fly.io client. With no token configured every
// fetch reports no data.
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

	if cfg.Token == "" {
		slog.Warn("fly token not configured, fly polling disabled")
	}

	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
	}
}

// Provider returns the provider identifier.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderFly
}

type machine struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Fetch returns the machine counts for the target's Fly app.
func (c *Client) Fetch(ctx context.Context, target registry.Target) (*provider.State, error) {
	fly := target.Service.Config.Fly
	if c.token == "" || fly == nil {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/apps/%s/machines", c.baseURL, fly.App)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("fly request failed", "app", fly.App, "error", err)
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("fly returned non-ok", "app", fly.App, "status", resp.StatusCode)
		return nil, nil
	}

	var machines []machine
	if err := json.NewDecoder(resp.Body).Decode(&machines); err != nil {
		slog.Debug("fly response decode failed", "app", fly.App, "error", err)
		return nil, nil
	}

	started := 0
	for _, m := range machines {
		if m.State == "started" {
			started++
		}
	}

	return &provider.State{
		Observations: []provider.Observation{{
			Status:  status.NormalizeFlyMachines(len(machines), started),
			Message: fmt.Sprintf("%d/%d machines started", started, len(machines)),
			Meta: map[string]any{
				"app":              fly.App,
				"machines_total":   len(machines),
				"machines_started": started,
			},
		}},
	}, nil
}
