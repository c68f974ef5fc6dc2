package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/config"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/session"
)

// Version is reported by /v1/status
var Version = "0.1.0"

// Error codes returned in the "code" field of error bodies
const (
	CodeInvalidRequest    = "invalid_request"
	CodeInsufficientScope = "insufficient_scope"
	CodeStateConflict     = "state_conflict"
	CodeSessionNotFound   = "session_not_found"
	CodeSessionExpired    = "session_expired"
	CodeNotFound          = "not_found"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal"
)

// Server represents the Temario daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	server  *http.Server
	router  *http.ServeMux
	limiter ratelimit.RateLimiter

	sessions  session.SessionService
	storage   string
	events    bool
	startedAt time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config   *config.LocalConfig
	Sessions session.SessionService

	// Reported by /v1/status
	StorageDriver string
	EventsEnabled bool
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session service is required")
	}

	s := &Server{
		cfg:       cfg.Config,
		router:    http.NewServeMux(),
		sessions:  cfg.Sessions,
		storage:   cfg.StorageDriver,
		events:    cfg.EventsEnabled,
		startedAt: time.Now(),
	}

	if rate := cfg.Config.Daemon.RateLimitPerSecond; rate > 0 {
		burst := cfg.Config.Daemon.RateLimitBurst
		if burst <= 0 {
			burst = rate * 3
		}
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    burst,
			Interval: time.Second,
		})
	}

	// Setup routes
	s.setupRoutes()

	// Create HTTP server with middleware chain
	handler := recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         cfg.Config.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/config", s.handleGetConfig)

	// Selection
	s.router.Handle("POST /selection", rateLimitMiddleware(s.limiter, http.HandlerFunc(s.handleSelect)))
	s.router.HandleFunc("GET /selection/{sessionId}", s.handleGetSession)
	s.router.HandleFunc("POST /selection/{sessionId}/advance", s.handleAdvance)
	s.router.HandleFunc("DELETE /selection/{sessionId}", s.handleAbandon)
}

// Handler returns the full middleware chain
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting temario daemon",
		"addr", s.server.Addr,
		"storage", s.storage,
		"events", s.events,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			slog.Warn("failed to close rate limiter", "error", err)
		}
	}

	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":         "running",
		"version":        Version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"storage":        s.storage,
		"cache":          s.cfg.Cache.Driver,
		"session_store":  s.cfg.Sessions.Store,
		"events":         s.events,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Return config without connection strings or secrets
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"daemon": map[string]any{
			"port":                  s.cfg.Daemon.Port,
			"bind":                  s.cfg.Daemon.Bind,
			"log_level":             s.cfg.Daemon.LogLevel,
			"rate_limit_per_second": s.cfg.Daemon.RateLimitPerSecond,
		},
		"storage": map[string]any{
			"driver": s.cfg.Storage.Driver,
		},
		"cache": map[string]any{
			"driver": s.cfg.Cache.Driver,
			"ttl":    s.cfg.Cache.TTL.String(),
		},
		"selection": map[string]any{
			"max_count":            s.cfg.Selection.MaxCount,
			"active_window":        s.cfg.Selection.ActiveWindow,
			"default_failed_order": s.cfg.Selection.DefaultFailedOrder,
			"strict_flags":         s.cfg.Selection.StrictFlags,
		},
		"adaptive": map[string]any{
			"warmup_answers":  s.cfg.Adaptive.WarmupAnswers,
			"trailing_window": s.cfg.Adaptive.TrailingWindow,
			"upper_threshold": s.cfg.Adaptive.UpperThreshold,
			"lower_threshold": s.cfg.Adaptive.LowerThreshold,
		},
		"sessions": map[string]any{
			"store": s.cfg.Sessions.Store,
			"ttl":   s.cfg.Sessions.TTL.String(),
		},
		"events": map[string]any{
			"enabled": s.events,
		},
	})
}

// Selection handlers

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req domain.SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get(UserIDHeader)
	}

	plan, err := s.sessions.Select(r.Context(), req)
	if err != nil {
		s.serviceError(w, "failed to select questions", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, plan)
}

type advanceRequest struct {
	LastResult *bool  `json:"last_result"`
	QuestionID string `json:"question_id"`
	Sequence   int    `json:"sequence,omitempty"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body", err)
		return
	}
	if req.LastResult == nil || req.QuestionID == "" {
		s.jsonError(w, http.StatusBadRequest, CodeInvalidRequest, "last_result and question_id are required", nil)
		return
	}

	sess, err := s.sessions.Advance(r.Context(), id, adaptive.Result{
		QuestionID: req.QuestionID,
		Correct:    *req.LastResult,
		Sequence:   req.Sequence,
	})
	if err != nil {
		s.serviceError(w, "failed to advance session", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, sess.View())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		s.serviceError(w, "failed to get session", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, sess.View())
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Abandon(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		s.serviceError(w, "failed to abandon session", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, sess.View())
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, code, message string, err error) {
	response := map[string]any{
		"error":  message,
		"code":   code,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

// serviceError maps engine errors onto HTTP statuses
func (s *Server) serviceError(w http.ResponseWriter, message string, err error) {
	status, code := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(message, "error", err)
		s.jsonError(w, status, code, message, nil)
		return
	}
	s.jsonError(w, status, code, message, err)
}

// StatusFor returns the HTTP status and error code for err
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientScope):
		return http.StatusBadRequest, CodeInsufficientScope
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict, CodeStateConflict
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, CodeSessionNotFound
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusNotFound, CodeSessionExpired
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
