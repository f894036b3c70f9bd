// Package store holds study.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

// InMemoryStore keeps everything in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	notes     map[topic.Topic][]*study.Note
	solutions map[topic.Topic][]*study.Solution
	history   map[string]map[topic.Topic][]*study.Entry
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		notes:     make(map[topic.Topic][]*study.Note),
		solutions: make(map[topic.Topic][]*study.Solution),
		history:   make(map[string]map[topic.Topic][]*study.Entry),
	}
}

// AddNote adds a note to the store
func (s *InMemoryStore) AddNote(ctx context.Context, t topic.Topic, content string, tags []string) (*study.Note, error) {
	note := study.NewNote(t, content, tags)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[t] = append(s.notes[t], note)
	cp := *note
	return &cp, nil
}

// ListNotes returns the notes for a subject, oldest first
func (s *InMemoryStore) ListNotes(ctx context.Context, t topic.Topic) ([]*study.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNotes(s.notes[t], nil), nil
}

// SearchNotes returns the notes whose content or tags contain query, ignoring case
func (s *InMemoryStore) SearchNotes(ctx context.Context, t topic.Topic, query string) ([]*study.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNotes(s.notes[t], func(n *study.Note) bool { return n.Matches(query) }), nil
}

// DeleteNote removes a note by ID
func (s *InMemoryStore) DeleteNote(ctx context.Context, t topic.Topic, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notes[t] {
		if n.ID == id {
			s.notes[t] = append(s.notes[t][:i:i], s.notes[t][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("note %s: %w", id, errors.ErrNotFound)
}

// AddSolution adds a solved problem to the store
func (s *InMemoryStore) AddSolution(ctx context.Context, t topic.Topic, problem, solution string, tags []string) (*study.Solution, error) {
	sol := study.NewSolution(t, problem, solution, tags)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solutions[t] = append(s.solutions[t], sol)
	cp := *sol
	return &cp, nil
}

// ListSolutions returns the solutions for a subject, oldest first
func (s *InMemoryStore) ListSolutions(ctx context.Context, t topic.Topic) ([]*study.Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySolutions(s.solutions[t], nil), nil
}

// SearchSolutions returns the solutions whose problem, solution or tags contain query
func (s *InMemoryStore) SearchSolutions(ctx context.Context, t topic.Topic, query string) ([]*study.Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySolutions(s.solutions[t], func(sol *study.Solution) bool { return sol.Matches(query) }), nil
}

// DeleteSolution removes a solution by ID
func (s *InMemoryStore) DeleteSolution(ctx context.Context, t topic.Topic, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sol := range s.solutions[t] {
		if sol.ID == id {
			s.solutions[t] = append(s.solutions[t][:i:i], s.solutions[t][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("solution %s: %w", id, errors.ErrNotFound)
}

// AppendHistory records one message of a session
func (s *InMemoryStore) AppendHistory(ctx context.Context, sessionID string, t topic.Topic, role message.Role, content string) (*study.Entry, error) {
	e := study.NewEntry(sessionID, t, role, content)
	s.mu.Lock()
	defer s.mu.Unlock()
	bySubject, ok := s.history[sessionID]
	if !ok {
		bySubject = make(map[topic.Topic][]*study.Entry)
		s.history[sessionID] = bySubject
	}
	bySubject[t] = append(bySubject[t], e)
	cp := *e
	return &cp, nil
}

// History returns the newest limit entries for one subject
func (s *InMemoryStore) History(ctx context.Context, sessionID string, t topic.Topic, limit int) ([]*study.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEntries(study.Tail(s.history[sessionID][t], limit)), nil
}

// AllHistory returns the newest limit entries across subjects
func (s *InMemoryStore) AllHistory(ctx context.Context, sessionID string, limit int) ([]*study.Entry, error) {
	s.mu.RLock()
	var all []*study.Entry
	for _, entries := range s.history[sessionID] {
		all = append(all, entries...)
	}
	all = copyEntries(all)
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return study.Tail(all, limit), nil
}

// ClearHistory drops the history of one subject, or all of it for topic.None
func (s *InMemoryStore) ClearHistory(ctx context.Context, sessionID string, t topic.Topic) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySubject, ok := s.history[sessionID]
	if !ok {
		return false, nil
	}
	if t == topic.None {
		delete(s.history, sessionID)
	} else {
		delete(bySubject, t)
	}
	return true, nil
}

// Close implements study.Store.
func (s *InMemoryStore) Close() error {
	return nil
}

func copyNotes(in []*study.Note, keep func(*study.Note) bool) []*study.Note {
	out := make([]*study.Note, 0, len(in))
	for _, n := range in {
		if keep == nil || keep(n) {
			cp := *n
			cp.Tags = append([]string(nil), n.Tags...)
			out = append(out, &cp)
		}
	}
	return out
}

func copySolutions(in []*study.Solution, keep func(*study.Solution) bool) []*study.Solution {
	out := make([]*study.Solution, 0, len(in))
	for _, s := range in {
		if keep == nil || keep(s) {
			cp := *s
			cp.Tags = append([]string(nil), s.Tags...)
			out = append(out, &cp)
		}
	}
	return out
}

func copyEntries(in []*study.Entry) []*study.Entry {
	out := make([]*study.Entry, len(in))
	for i, e := range in {
		cp := *e
		out[i] = &cp
	}
	return out
}
