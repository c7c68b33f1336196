package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/jaslr/orchon/internal/pkg/ctxlog"
)

// ErrorMapping pairs a sentinel error with the HTTP response it produces.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // empty means err.Error()
}

// HandleError writes the response for the first mapping matching err.
// Unmapped errors are logged and reported as a plain 500 so internals do
// not leak to clients.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
