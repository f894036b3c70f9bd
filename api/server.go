// Package api exposes the study assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/orchestrator"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

// DefaultSessionID is used when a request names no session.
const DefaultSessionID = "default"

// ChatService runs turns and manages session context.
type ChatService interface {
	ProcessTurn(ctx context.Context, key, utterance string) (*orchestrator.TurnResult, error)
	ClearSession(ctx context.Context, key string) error
}

// Server holds the HTTP handlers.
type Server struct {
	chat    ChatService
	store   study.Store
	metrics http.Handler
	health  map[string]bool
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthDetails adds flags to the health response, such as which
// backends are configured.
func WithHealthDetails(details map[string]bool) Option {
	return func(s *Server) {
		s.health = details
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server.
func NewServer(chat ChatService, store study.Store, opts ...Option) *Server {
	s := &Server{
		chat:   chat,
		store:  store,
		logger: logging.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Post("/chat", s.Chat)
	r.Get("/subjects", s.ListSubjects)
	r.Delete("/sessions/{id}", s.ClearSession)
	r.Get("/health", s.Health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/notes/{subject}", func(r chi.Router) {
		r.Get("/", s.ListNotes)
		r.Post("/", s.CreateNote)
		r.Get("/search", s.SearchNotes)
		r.Delete("/{id}", s.DeleteNote)
	})
	r.Route("/solutions/{subject}", func(r chi.Router) {
		r.Get("/", s.ListSolutions)
		r.Post("/", s.CreateSolution)
		r.Get("/search", s.SearchSolutions)
		r.Delete("/{id}", s.DeleteSolution)
	})
	r.Get("/history", s.AllHistory)
	r.Route("/history/{subject}", func(r chi.Router) {
		r.Get("/", s.History)
		r.Delete("/", s.ClearHistory)
	})
	return r
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// fail maps err to a status. Unexpected failures are logged and reported with
// a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidInput), errors.Is(err, errors.ErrInvalidTopic):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errors.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, errors.ErrRateLimited):
		Error(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, errors.ErrSessionBusy):
		Error(w, http.StatusServiceUnavailable, "session busy, try again")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", chiMiddleware.GetReqID(r.Context()), "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// subjectParam reads the {subject} path parameter. It writes a 400 and
// reports false when the value is outside the closed set.
func subjectParam(w http.ResponseWriter, r *http.Request) (topic.Topic, bool) {
	raw := chi.URLParam(r, "subject")
	t, ok := topic.ParseSubject(raw)
	if !ok {
		Error(w, http.StatusBadRequest, "Invalid subject: "+raw)
		return topic.None, false
	}
	return t, true
}

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("session_id")); id != "" {
		return id
	}
	return DefaultSessionID
}

func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body", errors.ErrInvalidInput)
	}
	return nil
}
