// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"pantry-alerts/alerts"
	"pantry-alerts/pkg/pantry"
	"pantry-alerts/ratelimit"
)

// Generator runs the expiration alert algorithm.
type Generator interface {
	Run(ctx context.Context) (*alerts.Result, error)
}

// Store interface for alert management.
type Store interface {
	ListAlerts(ctx context.Context, ownerID string) ([]*pantry.AlertRecord, error)
	LoadAlert(ctx context.Context, ownerID, alertID string) (*pantry.AlertRecord, error)
	SaveAlert(ctx context.Context, a *pantry.AlertRecord) error
}

// Authenticator resolves the calling user from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// IsNotFound checks if an error is a not found error.
type IsNotFound func(error) bool

// Server handles HTTP requests.
type Server struct {
	generator  Generator
	store      Store
	auth       Authenticator
	limiter    ratelimit.Limiter
	logger     *slog.Logger
	isNotFound IsNotFound
	now        func() time.Time
}

// Config holds server configuration.
type Config struct {
	Generator  Generator
	Store      Store
	Auth       Authenticator
	Limiter    ratelimit.Limiter
	Logger     *slog.Logger
	IsNotFound IsNotFound
	Now        func() time.Time
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	s := &Server{
		generator:  cfg.Generator,
		store:      cfg.Store,
		auth:       cfg.Auth,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
		isNotFound: cfg.IsNotFound,
		now:        cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.isNotFound == nil {
		s.isNotFound = func(error) bool { return false }
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tasks/expiration-alerts", s.handleScheduledRun)
	mux.HandleFunc("/alerts/trigger", s.handleTrigger)
	mux.HandleFunc("GET /alerts", s.handleListAlerts)
	mux.HandleFunc("POST /alerts/{id}/{action}", s.handleUpdateAlert)
	return mux
}

// ListenAndServe starts the server on port.
func (s *Server) ListenAndServe(port string) error {
	// Configure server with timeouts to prevent resource exhaustion.
	// WriteTimeout covers a full synchronous alert run.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleScheduledRun is invoked hourly by Cloud Scheduler. Access is
// restricted by Cloud Run IAM rather than bearer tokens.
func (s *Server) handleScheduledRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Scheduled alert generation triggered")

	res, err := s.generator.Run(r.Context())
	if err != nil {
		s.logger.Error("Error generating expiration alerts", "error", err)
		http.Error(w, "Alert generation failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "completed",
		"result": res,
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	userID, ok := s.authorize(w, r)
	if !ok {
		return
	}

	s.logger.Info("Manual alert generation triggered", "user_id", userID)

	res, err := s.generator.Run(r.Context())
	if err != nil {
		s.logger.Error("Error generating alerts", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to generate alerts",
			"details": err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"alertsCreated": res.AlertsCreated,
	})
}

// authorize authenticates and rate-limits the caller, writing the error
// response itself when the request must stop.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Warn("Authentication failed", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": authMessage(err)})
		return "", false
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), userID)
		if err != nil {
			// Fail open: a limiter outage should not block alert access.
			s.logger.Warn("Rate limiter unavailable", "user_id", userID, "error", err)
		} else if !allowed {
			s.logger.Warn("Rate limit exceeded", "user_id", userID, "path", r.URL.Path)
			s.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests. Please try again later."})
			return "", false
		}
	}
	return userID, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
