// Package study defines the notes, solutions and conversation history kept
// per subject, and the storage contract for them.
package study

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/topic"
)

// Default history limits.
const (
	DefaultHistoryLimit    = 20
	DefaultAllHistoryLimit = 50
)

// Note is a study note for a subject.
type Note struct {
	ID        string      `json:"id"`
	Topic     topic.Topic `json:"subject"`
	Content   string      `json:"content"`
	Tags      []string    `json:"tags"`
	CreatedAt time.Time   `json:"created_at"`
}

// Solution is a problem-solution pair from past experience.
type Solution struct {
	ID        string      `json:"id"`
	Topic     topic.Topic `json:"subject"`
	Problem   string      `json:"problem"`
	Solution  string      `json:"solution"`
	Tags      []string    `json:"tags"`
	CreatedAt time.Time   `json:"created_at"`
}

// Entry is one recorded chat message.
type Entry struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Topic     topic.Topic  `json:"subject"`
	Role      message.Role `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"timestamp"`
}

// Store persists notes, solutions and history. List and search results are in
// insertion order. Deleting an unknown id returns an error wrapping
// errors.ErrNotFound.
type Store interface {
	AddNote(ctx context.Context, t topic.Topic, content string, tags []string) (*Note, error)
	ListNotes(ctx context.Context, t topic.Topic) ([]*Note, error)
	SearchNotes(ctx context.Context, t topic.Topic, query string) ([]*Note, error)
	DeleteNote(ctx context.Context, t topic.Topic, id string) error

	AddSolution(ctx context.Context, t topic.Topic, problem, solution string, tags []string) (*Solution, error)
	ListSolutions(ctx context.Context, t topic.Topic) ([]*Solution, error)
	SearchSolutions(ctx context.Context, t topic.Topic, query string) ([]*Solution, error)
	DeleteSolution(ctx context.Context, t topic.Topic, id string) error

	AppendHistory(ctx context.Context, sessionID string, t topic.Topic, role message.Role, content string) (*Entry, error)
	// History returns the most recent limit entries for one subject.
	History(ctx context.Context, sessionID string, t topic.Topic, limit int) ([]*Entry, error)
	// AllHistory returns the most recent limit entries across subjects.
	AllHistory(ctx context.Context, sessionID string, limit int) ([]*Entry, error)
	// ClearHistory drops one subject's history, or all of it when t is
	// topic.None. It reports whether the session had any history.
	ClearHistory(ctx context.Context, sessionID string, t topic.Topic) (bool, error)

	Close() error
}

// NewNote builds a note with a fresh id.
func NewNote(t topic.Topic, content string, tags []string) *Note {
	return &Note{
		ID:        uuid.NewString(),
		Topic:     t,
		Content:   content,
		Tags:      normalizeTags(tags),
		CreatedAt: time.Now(),
	}
}

// NewSolution builds a solution with a fresh id.
func NewSolution(t topic.Topic, problem, solution string, tags []string) *Solution {
	return &Solution{
		ID:        uuid.NewString(),
		Topic:     t,
		Problem:   problem,
		Solution:  solution,
		Tags:      normalizeTags(tags),
		CreatedAt: time.Now(),
	}
}

// NewEntry builds a history entry with a fresh id.
func NewEntry(sessionID string, t topic.Topic, role message.Role, content string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Topic:     t,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Matches reports whether the note's content or any tag contains query,
// case-insensitively.
func (n *Note) Matches(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(n.Content), q) || tagsContain(n.Tags, q)
}

// Matches reports whether the problem, the solution or any tag contains
// query, case-insensitively.
func (s *Solution) Matches(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(s.Problem), q) ||
		strings.Contains(strings.ToLower(s.Solution), q) ||
		tagsContain(s.Tags, q)
}

func tagsContain(tags []string, lowered string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), lowered) {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Tail returns the last n items of s, or all of s when n <= 0.
func Tail[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
