package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/history"
	"github.com/jaslr/orchon/internal/live"
	"github.com/jaslr/orchon/internal/registry"
)

// EmailSender delivers one alert email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Input describes one alert to dispatch.
type Input struct {
	ProjectID string
	ServiceID string
	Type      domain.AlertType
	Message   string
}

// Dispatcher fans alerts out to live subscribers, the history store and,
// for business-tier projects with a contact address, email.
type Dispatcher struct {
	registry    *registry.Registry
	store       history.Store
	broadcaster *live.Broadcaster
	sender      EmailSender // nil when email delivery is disabled
	renderer    *Renderer
}

// NewDispatcher creates a new alert dispatcher. Sender may be nil.
func NewDispatcher(reg *registry.Registry, store history.Store, b *live.Broadcaster, sender EmailSender, renderer *Renderer) *Dispatcher {
	return &Dispatcher{
		registry:    reg,
		store:       store,
		broadcaster: b,
		sender:      sender,
		renderer:    renderer,
	}
}

// Dispatch delivers one alert. An unknown project is configuration drift:
// it is logged and dropped, never an error. Persistence and email failures
// are logged and do not stop the remaining steps; the live broadcast is the
// primary signal and always happens first.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) {
	project, err := d.registry.Project(in.ProjectID)
	if err != nil {
		if errors.Is(err, registry.ErrProjectNotFound) {
			slog.Warn("alert for unknown project, dropping",
				"project_id", in.ProjectID,
				"alert_type", in.Type,
			)
			return
		}
		slog.Error("resolve project for alert", "project_id", in.ProjectID, "error", err)
		return
	}

	now := time.Now().UTC()

	d.broadcaster.Broadcast(live.Event{
		Type:    live.EventAlert,
		Project: project.ID,
		Data: map[string]any{
			"project_id": project.ID,
			"service_id": in.ServiceID,
			"alert_type": in.Type,
			"message":    in.Message,
			"timestamp":  now.Format(time.RFC3339),
		},
	})

	uiAlert := domain.Alert{
		ProjectID: project.ID,
		ServiceID: in.ServiceID,
		Type:      in.Type,
		Message:   in.Message,
		Channel:   domain.ChannelUI,
		CreatedAt: now,
	}
	if err := d.store.InsertAlert(ctx, uiAlert); err != nil {
		slog.Error("persist ui alert", "project_id", project.ID, "error", err)
	}
	recordAlertDispatched(string(in.Type), string(domain.ChannelUI))

	if project.Tier != domain.TierBusiness || project.AlertEmail == "" || d.sender == nil {
		return
	}

	subject, body := d.renderer.Render(project, in, now)
	if err := d.sender.Send(ctx, project.AlertEmail, subject, body); err != nil {
		slog.Error("send alert email",
			"project_id", project.ID,
			"to", project.AlertEmail,
			"error", err,
		)
		recordEmailFailure()
		return
	}

	emailAlert := uiAlert
	emailAlert.Channel = domain.ChannelEmail
	if err := d.store.InsertAlert(ctx, emailAlert); err != nil {
		slog.Error("persist email alert", "project_id", project.ID, "error", err)
	}
	recordAlertDispatched(string(in.Type), string(domain.ChannelEmail))
}
