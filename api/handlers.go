package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ChatResponse is the reply to POST /chat.
type ChatResponse struct {
	Response        string      `json:"response"`
	DetectedSubject topic.Topic `json:"detected_subject"`
	Style           string      `json:"style"`
	Mode            string      `json:"mode"`
	SessionID       string      `json:"session_id"`
}

// NoteRequest is the body of POST /notes/{subject}.
type NoteRequest struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// SolutionRequest is the body of POST /solutions/{subject}.
type SolutionRequest struct {
	Problem  string   `json:"problem"`
	Solution string   `json:"solution"`
	Tags     []string `json:"tags"`
}

// Chat runs one turn.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = DefaultSessionID
	}

	res, err := s.chat.ProcessTurn(r.Context(), id, req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	subject := res.Topic
	if !subject.IsSpecific() {
		subject = topic.General
	}
	JSON(w, http.StatusOK, ChatResponse{
		Response:        res.Reply,
		DetectedSubject: subject,
		Style:           string(res.Style),
		Mode:            string(res.Decision.Mode),
		SessionID:       id,
	})
}

// ClearSession drops the turn context of one session.
func (s *Server) ClearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.chat.ClearSession(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Session cleared", "session_id": id})
}

// ListSubjects lists the specific subjects.
func (s *Server) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects := topic.Names(topic.Specific)
	JSON(w, http.StatusOK, map[string]any{"subjects": subjects, "count": len(subjects)})
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "healthy"}
	for k, v := range s.health {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

func (s *Server) ListNotes(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	notes, err := s.store.ListNotes(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(notes))
}

func (s *Server) CreateNote(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.fail(w, r, fmt.Errorf("%w: content is required", errors.ErrInvalidInput))
		return
	}
	note, err := s.store.AddNote(r.Context(), t, req.Content, req.Tags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"note": note, "message": "Note created successfully"})
}

func (s *Server) SearchNotes(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	notes, err := s.store.SearchNotes(r.Context(), t, r.URL.Query().Get("query"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(notes))
}

func (s *Server) DeleteNote(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteNote(r.Context(), t, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			Error(w, http.StatusNotFound, "Note not found")
			return
		}
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Note deleted successfully"})
}

func (s *Server) ListSolutions(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	sols, err := s.store.ListSolutions(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(sols))
}

func (s *Server) CreateSolution(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	var req SolutionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Problem) == "" || strings.TrimSpace(req.Solution) == "" {
		s.fail(w, r, fmt.Errorf("%w: problem and solution are required", errors.ErrInvalidInput))
		return
	}
	sol, err := s.store.AddSolution(r.Context(), t, req.Problem, req.Solution, req.Tags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"solution": sol, "message": "Solution saved successfully"})
}

func (s *Server) SearchSolutions(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	sols, err := s.store.SearchSolutions(r.Context(), t, r.URL.Query().Get("query"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(sols))
}

func (s *Server) DeleteSolution(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteSolution(r.Context(), t, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			Error(w, http.StatusNotFound, "Solution not found")
			return
		}
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Solution deleted successfully"})
}

func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	entries, err := s.store.History(r.Context(), sessionID(r), t, limitParam(r, study.DefaultHistoryLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(entries))
}

func (s *Server) ClearHistory(w http.ResponseWriter, r *http.Request) {
	t, ok := subjectParam(w, r)
	if !ok {
		return
	}
	if _, err := s.store.ClearHistory(r.Context(), sessionID(r), t); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": "History cleared for " + string(t)})
}

func (s *Server) AllHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.AllHistory(r.Context(), sessionID(r), limitParam(r, study.DefaultAllHistoryLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(entries))
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// EnvConfigured reports which of the named environment variables are set,
// keyed as "<name>_configured" in lower case.
func EnvConfigured(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSuffix(n, "_API_KEY")) + "_configured"
		out[key] = os.Getenv(n) != ""
	}
	return out
}
