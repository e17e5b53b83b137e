// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/doc-extract/internal/pipeline"
	"github.com/sells-group/doc-extract/internal/store"
)

// Check is one readiness probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
	// Ready is reported when Run succeeds. Default: "ok".
	Ready string
}

// Options configures a Server.
type Options struct {
	Env              string
	CORSOrigins      []string
	BatchMaxSize     int
	BatchConcurrency int
	MaxUploadBytes   int64
	ReadyTimeout     time.Duration
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	runner pipeline.Runner
	opts   Options
	checks []Check
	runs   store.Store
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithChecks sets the readiness probes.
func WithChecks(checks ...Check) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithRunStore enables persistence of evaluation runs and the /runs routes.
func WithRunStore(st store.Store) Option {
	return func(s *Server) { s.runs = st }
}

// New creates a Server.
func New(runner pipeline.Runner, opts Options, extra ...Option) *Server {
	if opts.BatchMaxSize <= 0 {
		opts.BatchMaxSize = 100
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 5
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{runner: runner, opts: opts}
	for _, o := range extra {
		o(s)
	}
	return s
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(s.opts.Env == "production"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)

	r.Post("/extract", s.handleExtract)
	r.Post("/extract/upload", s.handleUpload)
	r.Post("/extract/batch", s.handleBatch)

	r.Post("/evaluate", s.handleEvaluate)
	if s.runs != nil {
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
	}

	return r
}
