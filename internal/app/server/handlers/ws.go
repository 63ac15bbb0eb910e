package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/arefin-aareef/talksy/internal/app/server/ws"
	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/pkg/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	log      *slog.Logger
	manager  services.IManagerService
	opts     ws.Options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*ws.Session
	closing  bool
	wg       sync.WaitGroup
}

func NewWSHandler(log *slog.Logger, manager services.IManagerService, opts ws.Options, allowedOrigins []string) *WSHandler {
	h := &WSHandler{
		log:      log,
		manager:  manager,
		opts:     opts,
		sessions: make(map[string]*ws.Session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: opts.HandshakeTimeout,
		CheckOrigin:      originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows requests without an Origin header (non browser
// clients) and any origin when the list holds "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	_, wildcard := set["*"]
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Handler upgrades first and authenticates on the open socket, so a bad
// token is answered with a policy violation close frame.
func (h *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	token := ws.TokenFromRequest(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "ws handler - upgrade - ws upgrade failed", logging.Err(err))
		return
	}
	connID := uuid.NewString()
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("conn.id", connID))

	session := ws.NewSession(connID, ws.NewWebSocket(conn, h.opts), h.manager, h.opts, h.log)
	h.track(session)
	defer h.untrack(session)

	// Hijacked connections outlive the request context; keep its values only.
	ctx := context.WithoutCancel(r.Context())
	if err := session.Run(ctx, token); err != nil {
		return
	}
	span.SetAttributes(attribute.String("user.id", session.UserID()))
}

func (h *WSHandler) track(s *ws.Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
}

func (h *WSHandler) untrack(s *ws.Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	h.mu.Unlock()
}

// Active reports the number of open sessions.
func (h *WSHandler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown refuses new upgrades, closes every session with a going away
// frame and waits for their disconnect paths to finish.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	open := make([]*ws.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.Shutdown()
	}
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.log.InfoContext(ctx, "ws handler - shutdown - sessions released", slog.Int("count", len(open)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
