// Package api provides the HTTP server for finquest.
// It exposes quest catalogs, ad-hoc simulations and persisted runs as JSON.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finquest-app/finquest/internal/app/executor"
	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/app/session"
	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/catalog"
	"github.com/finquest-app/finquest/internal/infra/history"
	"github.com/finquest-app/finquest/internal/infra/observability"
	"github.com/finquest-app/finquest/internal/logging"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Options tunes the server.
type Options struct {
	Version            string
	RequestTimeout     time.Duration
	CORSOrigins        []string
	MetricsPath        string // empty disables /metrics
	MaxPlanSteps       int
	DefaultGranularity domain.Granularity
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Catalog   *catalog.Catalog
	Sessions  *session.Service
	Simulator *quest.Simulator
	Executor  *executor.Executor
	History   *history.Provider
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Server is the finquest HTTP API server.
type Server struct {
	d    Deps
	opts Options
	log  *slog.Logger
}

// NewServer creates a new API server.
func NewServer(d Deps, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxPlanSteps <= 0 {
		opts.MaxPlanSteps = 1200
	}
	if !opts.DefaultGranularity.Valid() {
		opts.DefaultGranularity = domain.GranularityMonth
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Server{d: d, opts: opts, log: log.With("component", "api")}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.traceMiddleware)
	r.Use(s.logMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(s.corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": s.opts.Version,
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/quests", s.handleListQuests)
		r.Get("/quests/{id}", s.handleGetQuest)
		r.Get("/actions", s.handleListActions)

		r.Post("/simulate", s.handleSimulate)
		r.Post("/step", s.handleStep)
		r.Post("/compare", s.handleCompare)
		r.Get("/compare/stats", s.handleCompareStats)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.handleStartRun)
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Post("/choices", s.handleChoose)
				r.Put("/batches/{index}", s.handleEditBatch)
				r.Put("/cursor", s.handleSeek)
				r.Get("/durations", s.handleDurations)
				r.Get("/payouts", s.handlePayouts)
				r.Get("/actions", s.handleAvailableActions)
			})
		})

		r.Get("/history", s.handleListHistory)
		r.Get("/history/{category}", s.handleGetHistory)
		r.Get("/traces", s.handleTraces)
	})

	if s.opts.MetricsPath != "" && s.d.Gatherer != nil {
		r.Handle(s.opts.MetricsPath, promhttp.HandlerFor(s.d.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// traceMiddleware reuses the request ID as the span trace ID.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// corsMiddleware adds CORS headers for browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "history_unavailable"
	default:
		return "error"
	}
}

// writeDomainError maps a service error onto a status code.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuestNotFound),
		errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrHistoryUnavailable),
		errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrQuestOver):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrNotCustomizable),
		errors.Is(err, domain.ErrInvalidGranularity),
		errors.Is(err, domain.ErrInvalidQuest),
		errors.Is(err, domain.ErrInvalidGoal),
		errors.Is(err, domain.ErrEmptyQuest),
		errors.Is(err, domain.ErrBatchOutOfRange),
		errors.Is(err, domain.ErrCursorOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
