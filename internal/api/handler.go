// Package api provides the HTTP handlers of the dashboard API.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	"github.com/jaslr/orchon/internal/live"
	"github.com/jaslr/orchon/internal/pkg/httputil"
	"github.com/jaslr/orchon/internal/recovery"
	"github.com/jaslr/orchon/internal/registry"
)

// Pagination constants.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	DefaultWindow    = 24 * time.Hour
)

// Handler handles HTTP requests for the dashboard API.
type Handler struct {
	registry  *registry.Registry
	store     history.Store
	live      *live.Handler
	recovery  *recovery.Service
	validator *validator.Validate
}

// NewHandler creates a new API handler.
func NewHandler(reg *registry.Registry, store history.Store, liveHandler *live.Handler, recoveryService *recovery.Service) *Handler {
	return &Handler{
		registry:  reg,
		store:     store,
		live:      liveHandler,
		recovery:  recoveryService,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all API routes. Write endpoints go behind the
// given auth middleware; everything else is public read-only.
func (h *Handler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/status", h.GetStatus)
	r.Get("/summary", h.GetSummary)
	r.Get("/alerts", h.ListAlerts)

	r.Route("/projects/{id}", func(r chi.Router) {
		r.Get("/deployments", h.ListDeployments)
		r.Get("/history", h.GetHistory)
		r.Get("/uptime", h.GetUptime)
	})

	r.Get("/live", h.live.ServeSSE)
	r.Get("/live/ws", h.live.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/costs", h.CreateCostEntry)
		r.Get("/costs", h.ListCosts)
		r.Post("/actions/{id}/execute", h.ExecuteAction)
		r.Get("/actions/{id}/executions", h.ListExecutions)
	})
}

// ServiceStatus is one tracked status key with its latest observation.
type ServiceStatus struct {
	ID        string                 `json:"id"`
	ServiceID string                 `json:"service_id"`
	Label     string                 `json:"label"`
	Category  domain.ServiceCategory `json:"category"`
	Provider  domain.Provider        `json:"provider"`
	Status    domain.HealthStatus    `json:"status"`
	Message   string                 `json:"message,omitempty"`
	CheckedAt *time.Time             `json:"checked_at,omitempty"`
}

// ProjectStatus is the current state of one project.
type ProjectStatus struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Owner    string           `json:"owner"`
	Tier     domain.AlertTier `json:"tier"`
	URL      string           `json:"url,omitempty"`
	Services []ServiceStatus  `json:"services"`
}

// GetStatus returns the current status of every project and service. A
// service never observed reports unknown.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := h.store.LatestStatuses(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	byKey := make(map[string]domain.StatusCheck, len(latest))
	for _, c := range latest {
		byKey[c.ServiceID] = c
	}

	projects := make([]ProjectStatus, 0)
	for _, p := range h.registry.Projects() {
		ps := ProjectStatus{
			ID:       p.ID,
			Name:     p.Name,
			Owner:    p.Owner,
			Tier:     p.Tier,
			URL:      p.URL,
			Services: make([]ServiceStatus, 0, len(p.Services)),
		}
		for _, svc := range p.Services {
			for _, key := range svc.StatusKeys() {
				entry := ServiceStatus{
					ID:        key,
					ServiceID: svc.ID,
					Label:     svc.Label,
					Category:  svc.Category,
					Provider:  svc.Provider,
					Status:    domain.StatusUnknown,
				}
				if check, ok := byKey[key]; ok {
					entry.Status = check.Status
					entry.Message = check.Message
					checkedAt := check.CheckedAt
					entry.CheckedAt = &checkedAt
				}
				ps.Services = append(ps.Services, entry)
			}
		}
		projects = append(projects, ps)
	}

	httputil.Success(w, http.StatusOK, projects)
}

// GetSummary returns status counts across all tracked services.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	latest, err := h.store.LatestStatuses(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	byKey := make(map[string]domain.StatusCheck, len(latest))
	for _, c := range latest {
		byKey[c.ServiceID] = c
	}

	var summary domain.StatusSummary
	for _, p := range h.registry.Projects() {
		for _, svc := range p.Services {
			for _, key := range svc.StatusKeys() {
				current := domain.StatusUnknown
				if check, ok := byKey[key]; ok {
					current = check.Status
				}
				switch current {
				case domain.StatusHealthy:
					summary.Healthy++
				case domain.StatusDegraded:
					summary.Degraded++
				case domain.StatusDown:
					summary.Down++
				default:
					summary.Unknown++
				}
			}
		}
	}

	httputil.Success(w, http.StatusOK, summary)
}

// ListDeployments returns the newest deployments for a project.
func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	project, err := h.registry.Project(chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, projectErrorMappings)
		return
	}

	serviceIDs := make([]string, 0, len(project.Services))
	for _, svc := range project.Services {
		serviceIDs = append(serviceIDs, svc.ID)
	}

	deployments, err := h.store.RecentDeployments(r.Context(), serviceIDs, parseLimit(r))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	if deployments == nil {
		deployments = make([]domain.Deployment, 0)
	}

	httputil.Success(w, http.StatusOK, deployments)
}

// GetHistory returns a project's status checks within a time window.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	project, err := h.registry.Project(chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, projectErrorMappings)
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var keys []string
	for _, svc := range project.Services {
		keys = append(keys, svc.StatusKeys()...)
	}

	checks, err := h.store.StatusHistory(r.Context(), keys, window)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	if checks == nil {
		checks = make([]domain.StatusCheck, 0)
	}

	httputil.Success(w, http.StatusOK, checks)
}

// GetUptime returns a project's uptime samples within a time window.
func (h *Handler) GetUptime(w http.ResponseWriter, r *http.Request) {
	project, err := h.registry.Project(chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, projectErrorMappings)
		return
	}

	window, err := parseWindow(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	serviceIDs := make([]string, 0, len(project.Services))
	for _, svc := range project.Services {
		serviceIDs = append(serviceIDs, svc.ID)
	}

	checks, err := h.store.UptimeHistory(r.Context(), serviceIDs, window)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	if checks == nil {
		checks = make([]domain.UptimeCheck, 0)
	}

	httputil.Success(w, http.StatusOK, checks)
}

// ListAlerts returns recent alerts, optionally filtered by project.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project")
	if projectID != "" {
		if _, err := h.registry.Project(projectID); err != nil {
			httputil.HandleError(r.Context(), w, err, projectErrorMappings)
			return
		}
	}

	alerts, err := h.store.RecentAlerts(r.Context(), projectID, parseLimit(r))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	if alerts == nil {
		alerts = make([]domain.Alert, 0)
	}

	httputil.Success(w, http.StatusOK, alerts)
}

// CreateCostEntryRequest is the request body for recording a cost sample.
type CreateCostEntryRequest struct {
	ProjectID string  `json:"project_id" validate:"required"`
	Provider  string  `json:"provider" validate:"required"`
	AmountUSD float64 `json:"amount_usd" validate:"gte=0"`
	Period    string  `json:"period" validate:"required"`
}

// CreateCostEntry records one aggregate cost sample pushed by an external
// billing exporter.
func (h *Handler) CreateCostEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateCostEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		httputil.ValidationError(w, err)
		return
	}
	if _, err := h.registry.Project(req.ProjectID); err != nil {
		httputil.HandleError(r.Context(), w, err, projectErrorMappings)
		return
	}

	entry := domain.CostEntry{
		ProjectID: req.ProjectID,
		Provider:  domain.Provider(req.Provider),
		AmountUSD: req.AmountUSD,
		Period:    req.Period,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.InsertCostEntry(r.Context(), entry); err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusCreated, entry)
}

// ListCosts returns recent cost samples for a project.
func (h *Handler) ListCosts(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project")
	if projectID == "" {
		httputil.Error(w, http.StatusBadRequest, "project query parameter required")
		return
	}
	if _, err := h.registry.Project(projectID); err != nil {
		httputil.HandleError(r.Context(), w, err, projectErrorMappings)
		return
	}

	entries, err := h.store.RecentCosts(r.Context(), projectID, parseLimit(r))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	if entries == nil {
		entries = make([]domain.CostEntry, 0)
	}

	httputil.Success(w, http.StatusOK, entries)
}

// ExecuteAction runs a recovery action and returns the finished execution.
func (h *Handler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	exec, err := h.recovery.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, actionErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, exec)
}

// ListExecutions returns recent executions of a recovery action.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := h.recovery.Executions(r.Context(), chi.URLParam(r, "id"), parseLimit(r))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, actionErrorMappings)
		return
	}
	if execs == nil {
		execs = make([]domain.ActionExecution, 0)
	}

	httputil.Success(w, http.StatusOK, execs)
}

var projectErrorMappings = []httputil.ErrorMapping{
	{Error: registry.ErrProjectNotFound, Status: http.StatusNotFound},
}

var actionErrorMappings = []httputil.ErrorMapping{
	{Error: registry.ErrActionNotFound, Status: http.StatusNotFound},
	{Error: recovery.ErrExecutionInProgress, Status: http.StatusConflict},
}

func parseLimit(r *http.Request) int {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit
}

func parseWindow(r *http.Request) (history.Window, error) {
	now := time.Now().UTC()
	window := history.Window{From: now.Add(-DefaultWindow), To: now}

	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return history.Window{}, errInvalidTime("from")
		}
		window.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return history.Window{}, errInvalidTime("to")
		}
		window.To = to
	}
	return window, nil
}

type errInvalidTime string

func (e errInvalidTime) Error() string {
	return "invalid " + string(e) + " timestamp, want RFC3339"
}
