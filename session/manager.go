package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
)

// Manager gives turns serialized read-modify-write access to session records.
// Turns on the same key run one at a time in arrival order of lock
// acquisition; turns on different keys do not block each other.
type Manager struct {
	store  Store
	locks  *keyedMutex
	now    func() time.Time
	logger *slog.Logger
}

// Option is a function that configures a Manager.
type Option func(*Manager)

// WithStore sets the store for the manager.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new session manager with the given options.
//
// Example:
//
//	mgr := session.NewManager(session.WithStore(inmemory.NewStore(24 * time.Hour)))
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks: newKeyedMutex(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m
}

// Get returns a copy of the record for key, or a fresh record when none is
// stored. The fresh record is not persisted.
func (m *Manager) Get(ctx context.Context, key string) (*Record, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}
	return m.loadOrNew(ctx, key)
}

// Update runs fn on a private copy of key's record while holding the key's
// lock and, if fn succeeds, saves the copy in a single replace. When fn
// fails nothing is written.
func (m *Manager) Update(ctx context.Context, key string, fn func(ctx context.Context, rec *Record) error) error {
	if err := m.ensureStore(); err != nil {
		return err
	}

	unlock, err := m.locks.lock(ctx, key)
	if err != nil {
		m.logger.Warn("gave up waiting for session lock", "session", key, "error", err)
		return err
	}
	defer unlock()

	rec, err := m.loadOrNew(ctx, key)
	if err != nil {
		return err
	}
	if err := fn(ctx, rec); err != nil {
		return err
	}

	rec.Key = key
	rec.UpdatedAt = m.now()
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.Error("save session failed", "session", key, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete drops key's record. Deleting an unknown key is not an error.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := m.ensureStore(); err != nil {
		return err
	}

	unlock, err := m.locks.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.store.Delete(ctx, key); err != nil && !errors.Is(err, errors.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	m.logger.Info("session cleared", "session", key)
	return nil
}

// List returns the stored session keys.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}
	return m.store.List(ctx)
}

// Count returns the number of stored sessions.
func (m *Manager) Count(ctx context.Context) (int, error) {
	if err := m.ensureStore(); err != nil {
		return 0, err
	}
	return m.store.Count(ctx)
}

func (m *Manager) loadOrNew(ctx context.Context, key string) (*Record, error) {
	rec, err := m.store.Load(ctx, key)
	switch {
	case err == nil:
		return rec.Clone(), nil
	case errors.Is(err, errors.ErrNotFound):
		m.logger.Debug("creating session", "session", key)
		rec = NewRecord(key)
		rec.CreatedAt = m.now()
		rec.UpdatedAt = rec.CreatedAt
		return rec, nil
	default:
		m.logger.Error("load session failed", "session", key, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
}

func (m *Manager) ensureStore() error {
	if m.store == nil {
		return fmt.Errorf("session manager store is not configured")
	}
	return nil
}

// keyedMutex is a set of per-key locks that can be abandoned on context
// cancellation. Entries are removed once no caller holds or awaits them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, fmt.Errorf("%w: %w", errors.ErrSessionBusy, ctx.Err())
	}
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
