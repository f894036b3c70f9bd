package session

import (
	"context"
	"testing"
)

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if k.size() != 1 {
		t.Errorf("size = %d while held", k.size())
	}
	unlock()
	if k.size() != 0 {
		t.Errorf("size = %d after unlock, want 0", k.size())
	}

	ctx, cancel := context.WithCancel(context.Background())
	unlock, _ = k.lock(context.Background(), "b")
	cancel()
	if _, err := k.lock(ctx, "b"); err == nil {
		t.Error("expected error from cancelled waiter")
	}
	unlock()
	if k.size() != 0 {
		t.Errorf("size = %d after abandoned wait, want 0", k.size())
	}
}
