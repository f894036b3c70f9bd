package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/middleware"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestTurnLoggerSuccess(t *testing.T) {
	l, buf := newBufferLogger()
	ctx := middleware.NewContext(context.Background(), "s1", "what is a closure")

	err := New(l).Execute(ctx, func(c *middleware.Context) error {
		c.Metadata["topic"] = "javascript"
		c.Response = message.NewMessage(message.RoleAssistant, "a function with captured scope")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"turn started", "turn completed", "session=s1", "topic=javascript", "reply_chars="} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestTurnLoggerFailure(t *testing.T) {
	l, buf := newBufferLogger()
	boom := errors.New("boom")

	err := New(l).Execute(middleware.NewContext(context.Background(), "s1", "x"), func(*middleware.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	if !strings.Contains(buf.String(), "turn failed") {
		t.Fatalf("expected failure log, got:\n%s", buf.String())
	}
}
