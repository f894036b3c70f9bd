package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/sweetpotato0/studybuddy/config"
	"github.com/sweetpotato0/studybuddy/orchestrator"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/router"
	"github.com/sweetpotato0/studybuddy/study/store"
	"github.com/sweetpotato0/studybuddy/topic"
)

type fakeChat struct {
	turns   []string
	cleared int
}

func (f *fakeChat) ProcessTurn(ctx context.Context, key, utterance string) (*orchestrator.TurnResult, error) {
	f.turns = append(f.turns, utterance)
	return &orchestrator.TurnResult{
		Reply:    "reply to " + utterance,
		Topic:    topic.Python,
		Style:    router.StyleNormal,
		Decision: router.Decision{Mode: router.ModeAnswer},
	}, nil
}

func (f *fakeChat) ClearSession(ctx context.Context, key string) error {
	f.cleared++
	return nil
}

func runREPL(t *testing.T, input string) (*fakeChat, string) {
	t.Helper()
	s := store.NewInMemoryStore()
	if _, err := s.AddNote(context.Background(), topic.Python, "Lists are mutable", []string{"basics"}); err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	chat := &fakeChat{}
	var out bytes.Buffer
	r := &repl{chat: chat, store: s, session: "t", in: strings.NewReader(input), out: &out}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	return chat, out.String()
}

func TestREPLConversation(t *testing.T) {
	chat, out := runREPL(t, "what is a list?\n\n/quit\nnever sent\n")

	if len(chat.turns) != 1 || chat.turns[0] != "what is a list?" {
		t.Fatalf("turns = %v", chat.turns)
	}
	if !strings.Contains(out, "[PYTHON Assistant]") || !strings.Contains(out, "reply to what is a list?") {
		t.Fatalf("reply not printed:\n%s", out)
	}
	if !strings.Contains(out, "Goodbye! Happy studying!") {
		t.Fatal("missing goodbye")
	}
}

func TestREPLCommands(t *testing.T) {
	chat, out := runREPL(t, "/subjects\n/notes python\n/notes cobol\n/notes\n/clear\n/bogus\n/exit\n")

	for _, want := range []string{
		"Available subjects:",
		"  - gohighlevel",
		"Notes for python (1 total):",
		"Lists are mutable [basics]",
		`Unknown subject "cobol"`,
		"Usage: /notes <subject>",
		"Unknown command /bogus",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if chat.cleared != 1 {
		t.Fatalf("cleared = %d, want 1", chat.cleared)
	}
	if len(chat.turns) != 0 {
		t.Fatalf("commands should not reach the assistant: %v", chat.turns)
	}
}

func TestREPLEndOfInput(t *testing.T) {
	_, out := runREPL(t, "hello")
	if !strings.Contains(out, "Goodbye!") {
		t.Fatal("EOF should end the session politely")
	}
}

func TestConfigureLoggingFlagsWinOverConfig(t *testing.T) {
	prevShared, prevDefault := logging.Logger(), slog.Default()
	t.Cleanup(func() {
		logging.SetLogger(prevShared)
		slog.SetDefault(prevDefault)
	})

	cfg := config.Default()
	cfg.Log.Level = "error"

	configureLogging(&globalFlags{}, cfg)
	if logging.Logger().Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("config level error should suppress warn")
	}

	configureLogging(&globalFlags{logLevel: "debug"}, cfg)
	if !logging.Logger().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("--log-level should override the config")
	}
}
