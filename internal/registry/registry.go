// Package registry holds the immutable set of monitored projects.
//
// Projects and services are declared in static configuration, frozen at
// startup and only read afterwards. Lookups never mutate state, so the
// registry is safe for concurrent use without locking.
package registry

import (
	"errors"
	"fmt"

	"github.com/jaslr/orchon/internal/config"
	"github.com/jaslr/orchon/internal/domain"
)

// ErrProjectNotFound is returned when a project id is not in the registry.
var ErrProjectNotFound = errors.New("project not found")

// ErrActionNotFound is returned when a recovery action id is not in the registry.
var ErrActionNotFound = errors.New("recovery action not found")

// Target pairs a service with its owning project for polling.
type Target struct {
	Project *domain.Project
	Service domain.Service
}

// Registry answers project, service and action lookups.
type Registry struct {
	projects   map[string]*domain.Project
	ordered    []*domain.Project
	byProvider map[domain.Provider][]Target
	actions    map[string]*domain.RecoveryAction
}

// New builds a registry from validated configuration.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		projects:   make(map[string]*domain.Project),
		byProvider: make(map[domain.Provider][]Target),
		actions:    make(map[string]*domain.RecoveryAction),
	}

	for _, pc := range cfg.Projects {
		if _, ok := r.projects[pc.ID]; ok {
			return nil, fmt.Errorf("duplicate project id %q", pc.ID)
		}

		tier := pc.Tier
		if tier == "" {
			tier = domain.TierHobby
		}

		project := &domain.Project{
			ID:         pc.ID,
			Name:       pc.Name,
			Owner:      pc.Owner,
			Tier:       tier,
			AlertEmail: pc.AlertEmail,
			URL:        pc.URL,
		}

		for _, sc := range pc.Services {
			svc := domain.Service{
				ID:        sc.ID,
				ProjectID: pc.ID,
				Category:  sc.Category,
				Provider:  sc.Provider,
				Label:     sc.Label,
				CheckURL:  sc.CheckURL,
				Config: domain.ServiceConfig{
					GitHub:   sc.GitHub,
					Fly:      sc.Fly,
					Netlify:  sc.Netlify,
					Supabase: sc.Supabase,
					SSH:      sc.SSH,
				},
			}
			project.Services = append(project.Services, svc)
		}

		r.projects[project.ID] = project
		r.ordered = append(r.ordered, project)

		for _, svc := range project.Services {
			r.byProvider[svc.Provider] = append(r.byProvider[svc.Provider], Target{
				Project: project,
				Service: svc,
			})
		}
	}

	for _, ac := range cfg.Actions {
		if _, ok := r.projects[ac.ProjectID]; !ok {
			return nil, fmt.Errorf("action %q references unknown project %q", ac.ID, ac.ProjectID)
		}
		if _, ok := r.actions[ac.ID]; ok {
			return nil, fmt.Errorf("duplicate action id %q", ac.ID)
		}
		r.actions[ac.ID] = &domain.RecoveryAction{
			ID:        ac.ID,
			ProjectID: ac.ProjectID,
			Label:     ac.Label,
			Type:      ac.Type,
			Config: domain.RecoveryActionConfig{
				SSH:      ac.SSH,
				Fly:      ac.Fly,
				Workflow: ac.Workflow,
			},
		}
	}

	return r, nil
}

// Project returns the project with the given id.
func (r *Registry) Project(id string) (*domain.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

// Projects returns all projects in declaration order.
func (r *Registry) Projects() []*domain.Project {
	return r.ordered
}

// TargetsFor returns the (project, service) pairs polled by the given
// provider. The slice is shared; callers must not modify it.
func (r *Registry) TargetsFor(provider domain.Provider) []Target {
	return r.byProvider[provider]
}

// Action returns the recovery action with the given id.
func (r *Registry) Action(id string) (*domain.RecoveryAction, error) {
	a, ok := r.actions[id]
	if !ok {
		return nil, ErrActionNotFound
	}
	return a, nil
}

// Actions returns all recovery actions for a project.
func (r *Registry) Actions(projectID string) []*domain.RecoveryAction {
	var out []*domain.RecoveryAction
	for _, a := range r.actions {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out
}
