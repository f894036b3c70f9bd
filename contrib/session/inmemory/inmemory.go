// Package inmemory provides a process-local session store with idle expiry.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/session"
)

type entry struct {
	record  *session.Record
	expires time.Time
}

// InMemoryStore implements session storage using in-memory storage. Records
// expire ttl after their last save; a zero ttl keeps them forever.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]entry
	ttl      time.Duration
	now      func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

// NewInMemoryStore creates a new in-memory session store
func NewInMemoryStore(ttl time.Duration, opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		sessions: make(map[string]entry),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartJanitor sweeps expired sessions every interval until Close is called.
func (s *InMemoryStore) StartJanitor(interval time.Duration) {
	if interval <= 0 || s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Close stops the janitor, if running.
func (s *InMemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.RLock()
		stop, done := s.stop, s.done
		s.mu.RUnlock()
		if stop != nil {
			close(stop)
			<-done
		}
	})
	return nil
}

// Save saves a session to the store
func (s *InMemoryStore) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.Key == "" {
		return fmt.Errorf("session record cannot be nil: %w", errors.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{record: record.Clone()}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.sessions[record.Key] = e
	return nil
}

// Load loads a session from the store
func (s *InMemoryStore) Load(ctx context.Context, key string) (*session.Record, error) {
	s.mu.RLock()
	e, exists := s.sessions[key]
	s.mu.RUnlock()

	if !exists || s.expired(e) {
		return nil, fmt.Errorf("session %s: %w", key, errors.ErrNotFound)
	}
	return e.record.Clone(), nil
}

// Delete removes a session from the store
func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[key]; !exists {
		return fmt.Errorf("session %s: %w", key, errors.ErrNotFound)
	}
	delete(s.sessions, key)
	return nil
}

// List returns all live session keys in sorted order
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.sessions))
	for key, e := range s.sessions {
		if !s.expired(e) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Count returns the number of live sessions in the store
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	keys, err := s.List(ctx)
	return len(keys), err
}

// Exists checks if a live session exists in the store
func (s *InMemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.sessions[key]
	return exists && !s.expired(e), nil
}

// Sweep removes expired sessions and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.sessions {
		if s.expired(e) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

func (s *InMemoryStore) expired(e entry) bool {
	return !e.expires.IsZero() && !s.now().Before(e.expires)
}
