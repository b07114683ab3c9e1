// Package proxy assembles the HTTP server: router, middleware chain, and
// graceful lifecycle around the dispatcher.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pysugar/vertex-nexus/internal/auth/credentials"
	"github.com/pysugar/vertex-nexus/internal/config"
	"github.com/pysugar/vertex-nexus/internal/proxy/dispatch"
	"github.com/pysugar/vertex-nexus/internal/proxy/handlers"
	"github.com/pysugar/vertex-nexus/internal/proxy/middleware"
	"github.com/pysugar/vertex-nexus/internal/proxy/monitor"
	"github.com/pysugar/vertex-nexus/internal/regions"
	"github.com/pysugar/vertex-nexus/internal/stats"
	"github.com/pysugar/vertex-nexus/internal/upstream"
)

// Server owns the HTTP listener and the background pieces it drains on stop.
type Server struct {
	cfg     *config.Config
	httpSrv *http.Server
	tracker *stats.Tracker
	mon     *monitor.Monitor
}

// New wires the dispatcher, stats tracker, history monitor, and router.
func New(cfg *config.Config) (*Server, error) {
	tracker, err := stats.NewTracker(config.StatsPath(), cfg.Port)
	if err != nil {
		log.Printf("⚠️ Stats file unavailable: %v", err)
	}
	mon := monitor.Open(config.HistoryDBPath())

	dispatcher := &dispatch.Dispatcher{
		Cfg: cfg,
		Planner: &regions.Planner{
			CachePath:        config.RegionsCachePath(),
			CacheMaxAge:      24 * time.Hour,
			AnthropicDefault: cfg.DefaultRegion,
			GoogleDefault:    cfg.GoogleRegion,
		},
		Client: upstream.NewClient(cfg.ProjectID, credentials.NewADCSource()),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLog(tracker, mon))

	r.Get("/", handlers.Root(cfg, tracker))
	r.Get("/health", handlers.Health(tracker))
	r.Get("/history", handlers.History(mon))
	r.Get("/v1/models", handlers.ModelsList(cfg))
	r.Post("/v1/chat/completions", handlers.ChatCompletions(dispatcher))
	r.Post("/v1/completions", handlers.Completions(dispatcher))
	r.Post("/v1/images/generations", handlers.ImagesGenerations(dispatcher))
	// Anthropic clients hit either of these.
	r.Post("/v1/messages", handlers.ClaudeMessages(dispatcher))
	r.Post("/messages", handlers.ClaudeMessages(dispatcher))

	srv := &Server{
		cfg:     cfg,
		tracker: tracker,
		mon:     mon,
		httpSrv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 30 * time.Second,
			// No write timeout: streaming responses stay open as long as
			// the upstream keeps producing.
		},
	}
	return srv, nil
}

// ListenAndServe blocks until the listener stops. ErrServerClosed is the
// normal shutdown path and is swallowed.
func (s *Server) ListenAndServe() error {
	log.Printf("🚀 vertex-nexus listening on http://localhost:%d (project=%s)", s.cfg.Port, s.cfg.ProjectID)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and flushes the history writer.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.mon.Close()
	return err
}
