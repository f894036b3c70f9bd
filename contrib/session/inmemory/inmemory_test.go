package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/session"
	"github.com/sweetpotato0/studybuddy/topic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSaveLoadIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(0)

	rec := session.NewRecord("k1")
	rec.Topic = topic.Python
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rec.Topic = topic.N8N

	got, err := s.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Topic != topic.Python {
		t.Errorf("stored record was mutated through the caller's pointer: %s", got.Topic)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := NewInMemoryStore(0).Load(context.Background(), "nope")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewInMemoryStore(time.Hour, WithClock(clock.Now))

	_ = s.Save(ctx, session.NewRecord("a"))
	clock.Advance(30 * time.Minute)
	_ = s.Save(ctx, session.NewRecord("b"))

	clock.Advance(45 * time.Minute)
	if _, err := s.Load(ctx, "a"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expired session still loadable: %v", err)
	}
	if ok, _ := s.Exists(ctx, "b"); !ok {
		t.Error("live session reported missing")
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
}

func TestJanitorStopsOnClose(t *testing.T) {
	s := NewInMemoryStore(time.Millisecond)
	s.StartJanitor(time.Millisecond)
	_ = s.Save(context.Background(), session.NewRecord("x"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.RLock()
		n := len(s.sessions)
		s.mu.RUnlock()
		if n == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal("second Close failed")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(0)
	_ = s.Save(ctx, session.NewRecord("k"))

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second Delete() err = %v", err)
	}
}
