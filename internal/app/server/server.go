package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arefin-aareef/talksy/internal/app/server/handlers"
	"github.com/arefin-aareef/talksy/internal/app/server/ws"
	"github.com/arefin-aareef/talksy/internal/config"
	"github.com/arefin-aareef/talksy/internal/core/services"
	"github.com/arefin-aareef/talksy/pkg/middleware"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	cfg            *config.Config
	log            *slog.Logger
	mux            *http.ServeMux
	httpServer     *http.Server
	authHandler    *handlers.AuthHandler
	userHandler    *handlers.UserHandler
	messageHandler *handlers.MessageHandler
	wsHandler      *handlers.WSHandler
	tokenSvc       *services.TokenService
}

func NewServer(
	cfg *config.Config,
	log *slog.Logger,
	userSvc *services.UserService,
	tokenSvc *services.TokenService,
	msgSvc services.IMessageService,
	managerSvc services.IManagerService,
) *Server {
	s := &Server{
		cfg:            cfg,
		log:            log,
		mux:            http.NewServeMux(),
		authHandler:    handlers.NewAuthHandler(userSvc, tokenSvc),
		userHandler:    handlers.NewUserHandler(userSvc, managerSvc),
		messageHandler: handlers.NewMessageHandler(msgSvc, userSvc),
		wsHandler:      handlers.NewWSHandler(log, managerSvc, ws.OptionsFromConfig(cfg.Realtime), cfg.HTTP.AllowedOrigins),
		tokenSvc:       tokenSvc,
	}
	s.routes()
	// No server wide WriteTimeout: it would also cut hijacked websocket
	// connections. REST routes get a per handler timeout instead.
	s.httpServer = &http.Server{
		Addr:        cfg.Service.Addr,
		Handler:     s.Handler(),
		ReadTimeout: cfg.HTTP.ReadTimeout,
	}
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)
	limit := httprate.LimitByIP(s.cfg.HTTP.RateLimit, s.cfg.HTTP.RateWindow)
	api := func(h http.HandlerFunc) http.Handler { return limit(auth(s.withTimeout(h))) }
	public := func(h http.HandlerFunc) http.Handler { return limit(s.withTimeout(h)) }

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Auth
	s.mux.Handle("POST /api/auth/register", public(s.authHandler.Register))
	s.mux.Handle("POST /api/auth/login", public(s.authHandler.Login))
	s.mux.Handle("GET /api/auth/profile", api(s.authHandler.Profile))
	s.mux.Handle("POST /api/auth/logout", api(s.authHandler.Logout))

	// Users
	s.mux.Handle("GET /api/users", api(s.userHandler.List))
	s.mux.Handle("GET /api/users/search", api(s.userHandler.Search))
	s.mux.Handle("GET /api/users/online", api(s.userHandler.Online))

	// Messages
	s.mux.Handle("POST /api/messages", api(s.messageHandler.Send))
	s.mux.Handle("GET /api/messages/conversations", api(s.messageHandler.Conversations))
	s.mux.Handle("GET /api/messages/conversation/{userId}", api(s.messageHandler.Conversation))
	s.mux.Handle("GET /api/messages/unread-count", api(s.messageHandler.UnreadCount))
	s.mux.Handle("PATCH /api/messages/{messageId}/read", api(s.messageHandler.MarkRead))
	s.mux.Handle("DELETE /api/messages/{messageId}", api(s.messageHandler.Delete))

	// Live transport. The token is checked on the open socket.
	s.mux.HandleFunc("GET /ws", s.wsHandler.Handler)
}

func (s *Server) withTimeout(h http.Handler) http.Handler {
	if s.cfg.HTTP.WriteTimeout <= 0 {
		return h
	}
	return http.TimeoutHandler(h, s.cfg.HTTP.WriteTimeout, `{"error":"Request timed out"}`)
}

// Handler returns the mux wrapped in the shared middleware chain.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: s.cfg.HTTP.AllowCredentials,
		MaxAge:           300,
	})
	var h http.Handler = s.mux
	h = middleware.RequestLogger(s.log)(h)
	h = middleware.TracerMiddleware(s.cfg.Service.Name)(h)
	return c.Handler(h)
}

func (s *Server) Start() error {
	s.log.Info("server - start - listening", slog.String("addr", s.cfg.Service.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then releases every live session.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.wsHandler.Shutdown(ctx))
}
