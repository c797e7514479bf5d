// Package api exposes retrieval and answering over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/ragpipe/internal/auth"
	"github.com/seanblong/ragpipe/internal/metrics"
	"github.com/seanblong/ragpipe/internal/rag"
	"github.com/seanblong/ragpipe/pkg/models"
)

type Searcher interface {
	Query(ctx context.Context, q string, k int) ([]models.SearchResult, error)
	Reload(ctx context.Context) error
	Manifest() (models.Manifest, bool)
}

type Answerer interface {
	Answer(ctx context.Context, q string) (rag.Answer, error)
}

// Server routes HTTP requests to the search service and the answerer.
// Answerer may be nil, in which case /answer is not mounted.
type Server struct {
	Searcher Searcher
	Answerer Answerer
	Auth     *auth.Authenticator
	TopK     int
	// MaxK caps the k a caller may ask for.
	MaxK int
}

type errorResponse struct {
	Error string `json:"error"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	K       int                   `json:"k"`
	Results []models.SearchResult `json:"results"`
}

type healthResponse struct {
	Status   string           `json:"status"`
	Manifest *models.Manifest `json:"manifest,omitempty"`
}

const defaultMaxK = 100

// Handler builds the router wrapped in request logging.
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware)
		r.Get("/search", s.search)
		if s.Answerer != nil {
			r.Get("/answer", s.answer)
		}
		r.With(s.Auth.RequireAdmin).Post("/reload", s.reload)
	})

	return hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(r),
	)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	m, ok := s.Searcher.Manifest()
	if !ok {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Manifest: &m})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q, ok := queryParam(w, r)
	if !ok {
		return
	}
	k := s.TopK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = n
	}
	if limit := s.maxK(); k > limit {
		writeError(w, http.StatusBadRequest, "k must not exceed "+strconv.Itoa(limit))
		return
	}

	results, err := s.Searcher.Query(r.Context(), q, k)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	hlog.FromRequest(r).Debug().Str("query", q).Int("k", k).Int("results", len(results)).Msg("search")
	writeJSON(w, http.StatusOK, searchResponse{Query: q, K: k, Results: results})
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request) {
	q, ok := queryParam(w, r)
	if !ok {
		return
	}
	ans, err := s.Answerer.Answer(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if err := s.Searcher.Reload(r.Context()); err != nil {
		s.handleError(w, r, err)
		return
	}
	m, _ := s.Searcher.Manifest()
	hlog.FromRequest(r).Info().Str("run_id", m.RunID).Int("count", m.Count).Msg("artifacts reloaded")
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) maxK() int {
	if s.MaxK > 0 {
		return s.MaxK
	}
	return defaultMaxK
}

func queryParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return "", false
	}
	return q, true
}

// statusFor maps pipeline errors onto HTTP statuses. Timeouts are checked
// first since they are reported together with the failing capability.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrMissingArtifact):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrEmbeddingFailure), errors.Is(err, models.ErrGenerationUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := hlog.FromRequest(r)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	logger.Warn().Err(err).Int("status", status).Msg("request failed")
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
