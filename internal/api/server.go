// Package api serves the pipeline outputs and run history as read-only JSON
// for the dashboard, plus a trigger for new runs.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/insight"
	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/monitoring"
	"github.com/sells-group/costdb/internal/pipeline"
	"github.com/sells-group/costdb/internal/store"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store     store.Store
	guard     *pipeline.Guard
	input     model.RunInput
	collector *monitoring.Collector
	checker   *monitoring.Checker
	insights  *insight.Analyzer
	gatherer  prometheus.Gatherer
	origins   []string
	// runCtx outlives individual requests; background runs use it.
	runCtx context.Context
}

// Options configures a Server. Gatherer defaults to the global registry.
// Checker is nil when monitoring is disabled.
type Options struct {
	Store          store.Store
	Guard          *pipeline.Guard
	Input          model.RunInput
	Insights       *insight.Analyzer
	Checker        *monitoring.Checker
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
}

// New creates a Server. ctx bounds runs started through the API.
func New(ctx context.Context, opts Options) *Server {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	analyzer := opts.Insights
	if analyzer == nil {
		analyzer = insight.New(nil)
	}
	return &Server{
		store:     opts.Store,
		guard:     opts.Guard,
		input:     opts.Input,
		collector: monitoring.NewCollector(opts.Store),
		checker:   opts.Checker,
		insights:  analyzer,
		gatherer:  gatherer,
		origins:   opts.AllowedOrigins,
		runCtx:    ctx,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/items", s.handleItems)
		r.Get("/costs", s.handleCosts)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/runs", s.handleListRuns)
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/health", s.handleRunHealth)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/alerts", s.handleAlerts)
		r.Post("/insights", s.handleInsights)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: store query failed", zap.String("path", r.URL.Path), zap.Error(err))
	respondError(w, r, http.StatusInternalServerError, "internal error")
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func outputFilter(r *http.Request) (store.OutputFilter, error) {
	q := r.URL.Query()
	f := store.OutputFilter{
		ItemCode: q.Get("item_code"),
		Region:   q.Get("region"),
		Supplier: q.Get("supplier"),
	}
	if v := q.Get("flagged_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("flagged_only must be a boolean")
		}
		f.FlaggedOnly = b
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		return f, err
	}
	return f, nil
}
