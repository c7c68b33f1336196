package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jaslr/orchon/internal/config"
	"github.com/jaslr/orchon/internal/domain"
	historymemory "github.com/jaslr/orchon/internal/history/memory"
	"github.com/jaslr/orchon/internal/live"
	"github.com/jaslr/orchon/internal/pkg/httputil"
	"github.com/jaslr/orchon/internal/recovery"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*httptest.Server, *historymemory.Store) {
	t.Helper()

	cfg := &config.Config{
		Projects: []config.ProjectConfig{{
			ID:   "p1",
			Name: "Project One",
			Services: []config.ServiceConfig{
				{
					ID:       "app",
					Category: domain.CategoryHosting,
					Provider: domain.ProviderFly,
					Label:    "App",
					Fly:      &domain.FlyConfig{App: "one"},
				},
				{
					ID:       "db",
					Category: domain.CategoryDatabase,
					Provider: domain.ProviderSupabase,
					Label:    "Database",
					Supabase: &domain.SupabaseConfig{ProjectRef: "abc"},
				},
			},
		}},
		Actions: []config.ActionConfig{{
			ID:        "restart",
			ProjectID: "p1",
			Type:      domain.ActionSSHCommand,
			SSH: &domain.SSHActionConfig{
				Host:    "host.invalid",
				User:    "deploy",
				KeyPath: "/nonexistent/key",
				Command: "true",
			},
		}},
	}

	reg, err := registry.New(cfg)
	require.NoError(t, err)

	store := historymemory.NewStore()
	b := live.NewBroadcaster()
	handler := NewHandler(reg, store, live.NewHandler(b), recovery.NewService(reg, store, recovery.Config{}))

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		handler.RegisterRoutes(r, httputil.BearerAuthMiddleware(testToken))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandler_GetStatus(t *testing.T) {
	srv, store := newTestServer(t)

	require.NoError(t, store.InsertStatusCheck(context.Background(), domain.StatusCheck{
		ServiceID: "app",
		Status:    domain.StatusHealthy,
		CheckedAt: time.Now().UTC(),
	}))

	var body struct {
		Data []ProjectStatus `json:"data"`
	}
	code := getJSON(t, srv.URL+"/api/v1/status", &body)
	require.Equal(t, http.StatusOK, code)

	require.Len(t, body.Data, 1)
	p := body.Data[0]
	assert.Equal(t, "p1", p.ID)
	// app + the two supabase aspects
	require.Len(t, p.Services, 3)

	byKey := make(map[string]ServiceStatus)
	for _, s := range p.Services {
		byKey[s.ID] = s
	}
	assert.Equal(t, domain.StatusHealthy, byKey["app"].Status)
	assert.Equal(t, domain.StatusUnknown, byKey["db-db"].Status, "never observed reports unknown")
	assert.Equal(t, domain.StatusUnknown, byKey["db-auth"].Status)
}

func TestHandler_GetSummary(t *testing.T) {
	srv, store := newTestServer(t)

	require.NoError(t, store.InsertStatusCheck(context.Background(), domain.StatusCheck{
		ServiceID: "db-db",
		Status:    domain.StatusDown,
		CheckedAt: time.Now().UTC(),
	}))

	var body struct {
		Data domain.StatusSummary `json:"data"`
	}
	code := getJSON(t, srv.URL+"/api/v1/summary", &body)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, 1, body.Data.Down)
	assert.Equal(t, 2, body.Data.Unknown)
	assert.Zero(t, body.Data.Healthy)
}

func TestHandler_ProjectNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/projects/ghost/deployments", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/projects/ghost/history", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/alerts?project=ghost", nil))
}

func TestHandler_GetHistoryInvalidWindow(t *testing.T) {
	srv, _ := newTestServer(t)

	code := getJSON(t, srv.URL+"/api/v1/projects/p1/history?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_CostsRequireBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := `{"project_id":"p1","provider":"fly","amount_usd":12.5,"period":"2026-07"}`

	// No token
	resp, err := http.Post(srv.URL+"/api/v1/costs", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong token
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/costs", strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token
	req, err = http.NewRequest(http.MethodPost, srv.URL+"/api/v1/costs", strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHandler_CreateCostEntryValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/costs", strings.NewReader(`{"provider":"fly"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_ExecuteActionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/actions/ghost/execute", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_ExecuteActionRecordsFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/actions/restart/execute", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data domain.ActionExecution `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.ExecutionFailure, body.Data.Status)
}

func TestHandler_ListDeployments(t *testing.T) {
	srv, store := newTestServer(t)

	now := time.Now().UTC()
	require.NoError(t, store.UpsertDeployment(context.Background(), domain.Deployment{
		ID:        "gh-1",
		ServiceID: "app",
		Provider:  domain.ProviderGitHub,
		Status:    domain.DeploySuccess,
		PushedAt:  &now,
	}))

	var body struct {
		Data []domain.Deployment `json:"data"`
	}
	code := getJSON(t, srv.URL+"/api/v1/projects/p1/deployments", &body)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "gh-1", body.Data[0].ID)
}

func TestHandler_SSEStreamsEvents(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/live", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// The connected ack arrives immediately.
	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "connected")
}
