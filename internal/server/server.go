// Package server provides the HTTP server and routing for givevault.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/givevault/internal/di"
	adaptershandlers "github.com/aristath/givevault/internal/modules/adapters/handlers"
	allocationhandlers "github.com/aristath/givevault/internal/modules/allocation/handlers"
	ledgerhandlers "github.com/aristath/givevault/internal/modules/ledger/handlers"
	riskhandlers "github.com/aristath/givevault/internal/modules/risk/handlers"
	tokenhandlers "github.com/aristath/givevault/internal/modules/token/handlers"
	vaulthandlers "github.com/aristath/givevault/internal/modules/vault/handlers"
	"github.com/aristath/givevault/internal/utils"
)

// statusCheckInterval is how often the status monitor runs
const statusCheckInterval = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Port        int
	DevMode     bool
	CORSOrigins []string
	Container   *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	corsOrigins    []string
	container      *di.Container
	systemHandlers *SystemHandlers
	statusMonitor  *StatusMonitor
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	systemHandlers := NewSystemHandlers(c.LedgerDB, c.Scheduler, c.Vault, cfg.Log)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		corsOrigins:    cfg.CORSOrigins,
		container:      c,
		systemHandlers: systemHandlers,
		statusMonitor:  NewStatusMonitor(c.EventManager, c.LedgerDB, c.Vault, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", utils.CallerHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)

	// Event streams are long-lived and stay outside the request timeout
	s.router.Route("/api/events", func(r chi.Router) {
		r.Get("/stream", NewEventsStreamHandler(c.EventBus, s.log).ServeHTTP)
		r.Get("/ws", NewEventsSocketHandler(c.EventBus, s.log).ServeHTTP)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		vaulthandlers.NewHandler(c.Vault, s.log).WithRebalancer(c.Allocator).RegisterRoutes(r)
		adaptershandlers.NewHandler(c.Registry, s.log).RegisterRoutes(r)
		allocationhandlers.NewHandler(c.Allocator, c.Registry, s.log).RegisterRoutes(r)
		riskhandlers.NewHandler(c.Limiter, s.log).RegisterRoutes(r)
		ledgerhandlers.NewHandler(c.LedgerRepo, c.Snapshotter, c.Vault.ID(), s.log).RegisterRoutes(r)
		tokenhandlers.NewHandler(c.AssetBook, c.ShareBook, c.Journal, c.Roles, s.log).RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
			r.Post("/jobs/{name}/run", s.systemHandlers.HandleRunJob)
		})
	})
}

// Start starts the status monitor and the HTTP server. It blocks until the
// server stops.
func (s *Server) Start() error {
	s.statusMonitor.Start(statusCheckInterval)
	s.log.Info().Msg("Status monitor started")

	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.statusMonitor.Stop()
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("caller", utils.Caller(r).String()).
			Msg("HTTP request")
	})
}
