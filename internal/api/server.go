// Package api exposes the read-only HTTP interface of the workbench:
// land and expression lookups, health probes and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/store"
)

const (
	requestTimeout   = 30 * time.Second
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// Store is the read surface the API serves from.
type Store interface {
	ListLands(ctx context.Context, name string) ([]store.LandSummary, error)
	GetLand(ctx context.Context, name string) (store.Land, error)
	ListExpressionsWithReadable(ctx context.Context, landID int64) ([]store.Expression, error)
	GetExpression(ctx context.Context, id int64) (store.Expression, error)
}

// Server wires HTTP handlers to the store and the metrics registry.
type Server struct {
	router chi.Router
	store  Store
	log    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. registry may
// be nil, in which case the default Prometheus gatherer is exposed.
func NewServer(st Store, registry *prometheus.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{store: st, log: log}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registry != nil {
		gatherer = registry
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/lands", s.listLands)
		r.Route("/lands/{name}", func(r chi.Router) {
			r.Get("/", s.getLand)
			r.Get("/expressions", s.listExpressions)
		})
		r.Get("/expressions/{id}", s.getExpression)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListLands(r.Context(), ""); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listLands(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	lands, err := s.store.ListLands(r.Context(), name)
	if err != nil {
		s.log.Error("list lands failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list lands")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"lands": toLandDTOs(lands)})
}

func (s *Server) getLand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	land, err := s.store.GetLand(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "land not found")
			return
		}
		s.log.Error("get land failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load land")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"land": toLandDTO(land)})
}

func (s *Server) listExpressions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	land, err := s.store.GetLand(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "land not found")
			return
		}
		s.log.Error("get land failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load land")
		return
	}
	limit, err := parseLimit(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minRelevance, err := parseIntParam(r, "min_relevance", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.store.ListExpressionsWithReadable(r.Context(), land.ID)
	if err != nil {
		s.log.Error("list expressions failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list expressions")
		return
	}
	out := make([]expressionDTO, 0, len(items))
	for _, e := range items {
		if e.Relevance < minRelevance {
			continue
		}
		out = append(out, toExpressionDTO(e, false))
		if len(out) >= limit {
			break
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"expressions": out})
}

func (s *Server) getExpression(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid expression id")
		return
	}
	expr, err := s.store.GetExpression(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "expression not found")
			return
		}
		s.log.Error("get expression failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load expression")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"expression": toExpressionDTO(expr, true)})
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	limit, err := parseIntParam(r, "limit", def)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return def, nil
	}
	if limit > max {
		return max, nil
	}
	return limit, nil
}

func parseIntParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
