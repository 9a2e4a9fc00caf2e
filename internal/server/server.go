// Package server provides the HTTP API for the signal engine.
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

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/di"
	alertshandlers "github.com/quangtd/vnsentry/internal/modules/alerts/handlers"
	backtesthandlers "github.com/quangtd/vnsentry/internal/modules/backtest/handlers"
	historyhandlers "github.com/quangtd/vnsentry/internal/modules/history/handlers"
	marketcalhandlers "github.com/quangtd/vnsentry/internal/modules/marketcal/handlers"
	optimizationhandlers "github.com/quangtd/vnsentry/internal/modules/optimization/handlers"
	portfoliohandlers "github.com/quangtd/vnsentry/internal/modules/portfolio/handlers"
	riskhandlers "github.com/quangtd/vnsentry/internal/modules/risk/handlers"
	settingshandlers "github.com/quangtd/vnsentry/internal/modules/settings/handlers"
	signalshandlers "github.com/quangtd/vnsentry/internal/modules/signals/handlers"
	universehandlers "github.com/quangtd/vnsentry/internal/modules/universe/handlers"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Cfg       *config.Config
	Container *di.Container
	Jobs      *di.JobInstances
}

// Server is the HTTP server. Module handlers mount under /api; system
// monitoring and job triggers live under /api/system.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	system    *SystemHandlers
}

// New creates the HTTP server with all routes mounted.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Cfg,
		container: cfg.Container,
		system:    NewSystemHandlers(cfg.Log, cfg.Cfg, cfg.Container, cfg.Jobs),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	c := s.container

	s.router.Route("/api", func(r chi.Router) {
		// Streams hold their connections open, so they stay outside the
		// request timeout applied to the rest of the API.
		events := NewEventsStreamHandler(c.Bus, s.log)
		r.Get("/events/stream", events.ServeHTTP)

		alertsHandler := alertshandlers.NewHandler(c.AlertService, c.AlertStreamer, s.log)
		alertsHandler.RegisterStreamRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			signalshandlers.NewHandler(c.Signals, s.log).RegisterRoutes(r)
			portfoliohandlers.NewHandler(c.Portfolio, c.Snapshots, s.log).RegisterRoutes(r)
			riskhandlers.NewHandler(c.Portfolio, c.RiskManager, s.log).RegisterRoutes(r)
			optimizationhandlers.NewHandler(c.Optimization, s.log).RegisterRoutes(r)
			backtesthandlers.NewHandler(c.Backtest, s.log).RegisterRoutes(r)
			universehandlers.NewHandler(c.UniverseService, s.log).RegisterRoutes(r)
			historyhandlers.NewHandler(c.HistoryService, c.Bars, s.log).RegisterRoutes(r)
			marketcalhandlers.NewHandler(c.Calendar, s.log).RegisterRoutes(r)
			settingshandlers.NewHandler(c.SettingsService, s.log).RegisterRoutes(r)
			alertsHandler.RegisterRoutes(r)

			s.system.RegisterRoutes(r)
		})
	})
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
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
			Msg("HTTP request")
	})
}
