// Package web provides the operations HTTP server of the ingestion daemon.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/celllog/internal/config"
	"github.com/JonMunkholm/celllog/internal/dispatch"
	"github.com/JonMunkholm/celllog/internal/journal"
	"github.com/JonMunkholm/celllog/internal/store"
	"github.com/JonMunkholm/celllog/internal/web/middleware"
)

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusSource exposes dispatcher counters.
type StatusSource interface {
	Status() dispatch.Status
}

// JournalReader lists recent outcomes.
type JournalReader interface {
	Recent(ctx context.Context, limit int, alertsOnly bool) ([]journal.Entry, error)
}

// WarehouseReader serves the flattened reporting view.
type WarehouseReader interface {
	Warehouse(ctx context.Context) ([]store.WarehouseRow, error)
}

// Deps are the collaborators behind the endpoints. Warehouse may be nil,
// in which case /warehouse answers 503.
type Deps struct {
	Store      Pinger
	Dispatcher StatusSource
	Journal    JournalReader
	Warehouse  WarehouseReader
}

// Server is the ops HTTP server.
type Server struct {
	deps   Deps
	cfg    config.ServerConfig
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(deps Deps, cfg config.ServerConfig) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(60 * time.Second))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.APIKeys))

		r.Get("/status", s.handleStatus)
		r.Get("/journal", s.handleJournal)
		r.Get("/warehouse", s.handleWarehouse)
	})
}

// Start listens on the configured address until Shutdown is called. It
// returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.cfg.Addr(),
		Handler:     s.router,
		ReadTimeout: s.cfg.ReadTimeout,
		IdleTimeout: 60 * time.Second,
	}

	slog.Info("ops server starting", "addr", s.cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
