// Package server exposes the dashboard REST API. It is a thin boundary:
// handlers parse and validate input, call one service, and encode the
// result. Domain logic stays in the risk, aggregate and mirror packages.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/amasuba/uraics-revenue-assurance/internal/aggregate"
	"github.com/amasuba/uraics-revenue-assurance/internal/config"
	"github.com/amasuba/uraics-revenue-assurance/internal/database"
	"github.com/amasuba/uraics-revenue-assurance/internal/graph"
	"github.com/amasuba/uraics-revenue-assurance/internal/mirror"
	"github.com/amasuba/uraics-revenue-assurance/internal/risk"
)

// Server wires the HTTP boundary to the services. All dependencies are
// injected; the server owns none of them and closes none of them.
type Server struct {
	cfg       config.ServerConfig
	db        *database.DB
	store     graph.Store
	evaluator *risk.Evaluator
	aggregate *aggregate.Service
	syncer    *mirror.Syncer
	sync      config.SyncConfig
	metrics   *Metrics
	logger    *slog.Logger

	httpServer *http.Server
}

// Options carries the injected dependencies for New.
type Options struct {
	Config    config.Config
	DB        *database.DB
	Store     graph.Store
	Evaluator *risk.Evaluator
	Aggregate *aggregate.Service
	Syncer    *mirror.Syncer
	Metrics   *Metrics
	Logger    *slog.Logger
}

// New builds a server and its route table.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		cfg:       opts.Config.Server,
		db:        opts.DB,
		store:     opts.Store,
		evaluator: opts.Evaluator,
		aggregate: opts.Aggregate,
		syncer:    opts.Syncer,
		sync:      opts.Config.Sync,
		metrics:   metrics,
		logger:    logger,
	}

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return s
}

// Routes builds the handler chain. Exposed for httptest.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/risks", s.handleListRisks)
	mux.HandleFunc("GET /api/risks/{id}", s.handleEvaluateRisk)
	mux.HandleFunc("GET /api/risks/{id}/summary", s.handleRiskSummary)
	mux.HandleFunc("GET /api/risks/{id}/taxpayers", s.handleRiskTaxpayers)
	mux.HandleFunc("POST /api/risks/{id}/sync", s.handleSyncRisk)
	mux.HandleFunc("POST /api/sync", s.handleSyncAll)
	mux.HandleFunc("GET /api/taxpayers/{tin}", s.handleTaxpayer)
	mux.HandleFunc("GET /api/dashboard/kpis", s.handleDashboardKPIs)
	mux.HandleFunc("GET /api/dashboard/regional", s.handleDashboardRegional)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.withRequestID(s.withCORS(s.withLogging(mux)))
}

// Start serves until the context is cancelled, then drains within the
// shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down", "timeout", s.cfg.ShutdownTimeout)
	return s.httpServer.Shutdown(shutdownCtx)
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		elapsed := time.Since(start)
		s.metrics.observeRequest(r.Method, route, rec.status, elapsed)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
			"request_id", w.Header().Get(headerRequestID))
	})
}

const headerRequestID = "X-Request-ID"

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+headerRequestID)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
