package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/middleware"
)

func TestRateLimiterPerSession(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewRateLimiter(2, time.Minute)
	m.now = func() time.Time { return now }

	run := func(key string) error {
		return m.Execute(middleware.NewContext(context.Background(), key, "hi"), func(*middleware.Context) error { return nil })
	}

	for i := 0; i < 2; i++ {
		if err := run("a"); err != nil {
			t.Fatalf("turn %d should pass: %v", i, err)
		}
	}
	if err := run("a"); !errors.Is(err, errors.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := run("b"); err != nil {
		t.Fatalf("other session should not be limited: %v", err)
	}

	now = now.Add(30 * time.Second)
	if err := run("a"); err != nil {
		t.Fatalf("token should refill after half the window: %v", err)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	m := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !m.Allow("a") {
			t.Fatal("disabled limiter should always allow")
		}
	}
	if m.Len() != 0 {
		t.Fatalf("disabled limiter should not track sessions, got %d", m.Len())
	}
}
