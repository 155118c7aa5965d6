// Package api serves the operator HTTP surface: live datasets, rule set
// topology, dry runs, the execution journal and Prometheus metrics. With a
// paper venue attached it also lets operators place orders and fills.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/hedgerules/internal/logger"
	"github.com/liamcoop/hedgerules/journal"
	"github.com/liamcoop/hedgerules/rules"
)

type Server struct {
	engine   *rules.Engine
	journal  journal.Store
	gatherer prometheus.Gatherer
	paper    PaperVenue
	router   *chi.Mux
}

type Option func(*Server)

// WithPaperVenue mounts the /api/v1/paper endpoints over v.
func WithPaperVenue(v PaperVenue) Option {
	return func(s *Server) { s.paper = v }
}

// NewServer builds the router. gatherer may be nil, in which case
// /metrics serves the default registry.
func NewServer(engine *rules.Engine, store journal.Store, gatherer prometheus.Gatherer, opts ...Option) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		engine:   engine,
		journal:  store,
		gatherer: gatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/datasets", func(r chi.Router) {
		r.Get("/", s.handleListDatasets)
		r.Get("/{name}", s.handleGetDataset)
	})

	r.Route("/api/v1/rulesets", func(r chi.Router) {
		r.Get("/", s.handleListRuleSets)
		r.Post("/{name}/explain", s.handleExplain)
	})

	r.Get("/api/v1/executions", s.handleListExecutions)

	if s.paper != nil {
		r.Route("/api/v1/paper", func(r chi.Router) {
			r.Post("/orders", s.handleCreatePaperOrder)
			r.Get("/orders/{sequence}", s.handleGetPaperOrder)
			r.Post("/orders/{sequence}/routes/{route}/fills", s.handlePaperFill)
			r.Post("/notifications", s.handleReplay)
		})
	}

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Datasets: len(s.engine.Datasets()),
		RuleSets: len(s.engine.RuleSets()),
	}
	if s.engine.Stopped() {
		resp.Status = "stopped"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	resp := DatasetsListResponse{Datasets: []DatasetSummary{}}
	for _, ds := range s.engine.Datasets() {
		resp.Datasets = append(resp.Datasets, DatasetSummary{
			Name:       ds.Name(),
			CreatedAt:  ds.CreatedAt(),
			DataPoints: len(ds.Names()),
			Stale:      ds.StaleNames(),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ds, err := s.engine.Dataset(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "dataset not found", err)
		return
	}

	respondJSON(w, http.StatusOK, DatasetResponse{
		Name:       ds.Name(),
		CreatedAt:  ds.CreatedAt(),
		DataPoints: ds.Snapshot(),
	})
}

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	resp := RuleSetsListResponse{RuleSets: []RuleSetResponse{}}
	for _, rs := range s.engine.RuleSets() {
		resp.RuleSets = append(resp.RuleSets, newRuleSetResponse(rs))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Dataset == "" {
		respondError(w, http.StatusBadRequest, "dataset is required", nil)
		return
	}

	explanation, err := s.engine.Explain(name, req.Dataset)
	switch {
	case errors.Is(err, rules.ErrRuleSetNotFound):
		respondError(w, http.StatusNotFound, "ruleset not found", err)
		return
	case errors.Is(err, rules.ErrDatasetNotFound):
		respondError(w, http.StatusNotFound, "dataset not found", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "explain failed", err)
		return
	}

	respondJSON(w, http.StatusOK, explanation)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := journal.Filter{Entity: r.URL.Query().Get("entity")}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		filter.Limit = limit
	}

	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	respondJSON(w, http.StatusOK, ExecutionsListResponse{Executions: entries})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}
