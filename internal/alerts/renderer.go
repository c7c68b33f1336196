package alerts

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/jaslr/orchon/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders alert emails from embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer creates a renderer and parses the alert templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("alerts").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse alert templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

type emailData struct {
	ProjectName string
	ServiceID   string
	AlertType   domain.AlertType
	Message     string
	Timestamp   string
}

// Render produces the subject and body of the alert email.
func (r *Renderer) Render(project *domain.Project, in Input, at time.Time) (subject, body string) {
	subject = fmt.Sprintf("[orchon] %s: %s", project.Name, in.Type)

	data := emailData{
		ProjectName: project.Name,
		ServiceID:   in.ServiceID,
		AlertType:   in.Type,
		Message:     in.Message,
		Timestamp:   at.Format(time.RFC3339),
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "alert_email.tmpl", data); err != nil {
		// The template is embedded and parsed at startup; execution can only
		// fail on a bad data shape. Fall back to the raw message.
		slog.Error("render alert email", "error", err)
		return subject, in.Message
	}

	return subject, strings.TrimSpace(buf.String())
}
