package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
	"github.com/JakeFAU/jobscout-crawler/internal/middleware"
)

const readyTimeout = 2 * time.Second

// Submitter enqueues crawl jobs.
type Submitter interface {
	Submit(ctx context.Context, job crawler.CrawlJob) (crawler.QueueItem, bool, error)
}

// StatsSource reports queue counts.
type StatsSource interface {
	Stats(ctx context.Context) (crawler.QueueStats, error)
}

// SiteRegistry reads and saves scan targets.
type SiteRegistry interface {
	Load() ([]crawler.Site, error)
	Upsert(site crawler.Site) error
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Submitter Submitter
	Queue     StatsSource
	Results   crawler.ResultStore
	Sites     SiteRegistry
}

// Options tune the server.
type Options struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	// MaxDepth and ChildLimit bound jobs started through /v1/scans.
	MaxDepth   int
	ChildLimit int
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router chi.Router
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.AuthEnabled {
			r.Use(middleware.APIKey(opts.APIKey))
		}
		r.Get("/queue/stats", s.queueStats)
		r.Get("/results", s.listResults)
		r.Get("/sites", s.listSites)
		r.Post("/scans", s.submitScan)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the queue backend answers.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if _, err := s.deps.Queue.Stats(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
