// Package api provides the HTTP server for breathe.
// It exposes the challenge, observation, and reward operations under
// /api/v1 plus /health and /metrics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/breathe/internal/app/engine"
	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/health"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins    []string
	RateLimit      float64 // Requests per second per caller; 0 disables limiting
	RateBurst      int
	RequestTimeout time.Duration
	JWTSecret      string
	DevHeader      bool // Accept X-User-ID without a token (local development only)
	Metrics        bool
}

// Server is the breathe HTTP API server.
type Server struct {
	engine  *engine.Engine
	health  *health.Checker
	opts    Options
	auth    *authenticator
	limiter *rateLimiter
}

// NewServer creates a new API server. checker may be nil.
func NewServer(eng *engine.Engine, checker *health.Checker, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		engine: eng,
		health: checker,
		opts:   opts,
		auth:   newAuthenticator(opts.JWTSecret, opts.DevHeader),
	}
	if opts.RateLimit > 0 {
		s.limiter = newRateLimiter(opts.RateLimit, opts.RateBurst)
	}
	return s
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(monitor)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)

	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.middleware)
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}

		r.Get("/categories", s.handleListCategories)
		r.Get("/challenge-types", s.handleListChallengeTypes)
		r.Post("/challenge-types/{typeID}/restart", s.handleRestartChallenge)

		r.Route("/observations", func(r chi.Router) {
			r.Post("/", s.handleLogObservation)
			r.Get("/", s.handleListObservations)
			r.Get("/latest", s.handleLatestObservations)
		})

		r.Route("/challenges", func(r chi.Router) {
			r.Post("/", s.handleJoinChallenge)
			r.Get("/", s.handleListChallenges)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetChallenge)
				r.Post("/pause", s.handleChallengeStatus(s.engine.PauseChallenge))
				r.Post("/resume", s.handleChallengeStatus(s.engine.ResumeChallenge))
				r.Post("/cancel", s.handleChallengeStatus(s.engine.CancelChallenge))
				r.Post("/complete", s.handleChallengeStatus(s.engine.CompleteChallenge))
				r.Post("/milestones/check", s.handleCheckMilestones)
			})
		})

		r.Post("/activities", s.handleAwardActivity)
		r.Post("/uploads/points", s.handleAwardUpload)
		r.Get("/points", s.handleGetPoints)
		r.Get("/achievements", s.handleListAchievements)
	})

	return s.cors(r)
}

// cors wraps h when origins are configured.
func (s *Server) cors(h http.Handler) http.Handler {
	if len(s.opts.CORSOrigins) == 0 {
		return h
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.opts.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", devUserHeader}),
		handlers.AllowCredentials(),
	)(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
		},
	})
}

// writeErr maps an engine error onto its HTTP status.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	var status int
	switch kind {
	case domain.KindUnauthenticated:
		status = http.StatusUnauthorized
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindInvalidState:
		status = http.StatusConflict
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindTransient:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	default:
		status = http.StatusInternalServerError
		slog.Error("request failed", "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		msg = "internal error"
	}
	writeError(w, status, kind, msg)
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrValidation)
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, name)
	}
	return n, nil
}
