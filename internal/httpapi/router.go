package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/processor"
)

// HealthCheck probes one dependency for /readyz.
type HealthCheck func(ctx context.Context) error

// Server holds the admin HTTP surface's dependencies and exposes a
// chi.Mux ready to be handed to http.Server.
type Server struct {
	Router            *chi.Mux
	Store             *jobstore.Store
	Processor         *processor.Processor
	Logger            *slog.Logger
	Checks            map[string]HealthCheck
	DefaultBatchLimit int
	InternalSecret    string
}

// NewServer builds the admin HTTP surface (SPEC_FULL.md §6): job enqueue/list/
// stats, a manual batch trigger (admin or internal-secret authenticated),
// and health/metrics endpoints.
func NewServer(store *jobstore.Store, proc *processor.Processor, logger *slog.Logger, metricsReg *prometheus.Registry, internalSecret string, defaultBatchLimit int, checks map[string]HealthCheck) *Server {
	if defaultBatchLimit <= 0 {
		defaultBatchLimit = 50
	}

	s := &Server{
		Router:            chi.NewRouter(),
		Store:             store,
		Processor:         proc,
		Logger:            logger,
		Checks:            checks,
		DefaultBatchLimit: defaultBatchLimit,
		InternalSecret:    internalSecret,
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(chimw.Recoverer)

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/", func(r chi.Router) {
		r.Use(Authenticate)

		r.Post("/jobs", s.handleEnqueue)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/stats", s.handleJobStats)
		r.Post("/admin/process", s.requireAdmin(s.handleProcessBatch))
	})

	s.Router.Route("/internal", func(r chi.Router) {
		r.Use(RequireInternalSecret(internalSecret))
		r.Post("/process", s.handleProcessBatchAsync)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsAdminFromContext(r.Context()) {
			RespondError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next(w, r)
	}
}
