package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaslr/orchon/internal/pkg/ctxlog"
	"github.com/jaslr/orchon/internal/pkg/httputil"
)

var errSinkClosed = errors.New("sink closed")

const wsWriteTimeout = 5 * time.Second

// Handler exposes the live-update subscription endpoints.
type Handler struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
}

// NewHandler creates a new live-update handler.
func NewHandler(b *Broadcaster) *Handler {
	return &Handler{
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeSSE streams events over Server-Sent Events until the client leaves.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sink := &sseSink{w: w, flusher: flusher}

	id, err := h.broadcaster.Subscribe(sink, parseProjectFilter(r))
	if err != nil {
		ctxlog.FromContext(r.Context()).Warn("sse subscribe failed", "error", err)
		return
	}

	<-r.Context().Done()

	sink.close()
	h.broadcaster.Unsubscribe(id)
}

// ServeWS streams events over a WebSocket until the client leaves.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		ctxlog.FromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sink := &wsSink{conn: conn}

	id, err := h.broadcaster.Subscribe(sink, parseProjectFilter(r))
	if err != nil {
		ctxlog.FromContext(r.Context()).Warn("websocket subscribe failed", "error", err)
		return
	}
	defer h.broadcaster.Unsubscribe(id)

	// Drain client frames so close and control messages are processed; the
	// read loop ending means the client is gone.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// parseProjectFilter reads the comma-separated project filter. Absent or
// empty means no filter.
func parseProjectFilter(r *http.Request) []string {
	raw := r.URL.Query().Get("projects")
	if raw == "" {
		return nil
	}

	var projects []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			projects = append(projects, p)
		}
	}
	return projects
}

type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (s *sseSink) Send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(event); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
