package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

// runStoreSuite exercises the study.Store contract. sid isolates runs that
// share a database.
func runStoreSuite(t *testing.T, s study.Store, sid string) {
	ctx := context.Background()
	subject := topic.LangGraph

	t.Run("notes", func(t *testing.T) {
		first, err := s.AddNote(ctx, subject, "StateGraph nodes return partial state "+sid, []string{"graph", " "})
		if err != nil {
			t.Fatalf("AddNote() error = %v", err)
		}
		if first.ID == "" || len(first.Tags) != 1 {
			t.Errorf("AddNote() = %+v", first)
		}
		second, _ := s.AddNote(ctx, subject, "Reducers merge channel updates "+sid, []string{"100%_sure-" + sid})
		_, _ = s.AddNote(ctx, topic.Python, "unrelated "+sid, nil)

		notes, err := s.SearchNotes(ctx, subject, sid)
		if err != nil {
			t.Fatalf("SearchNotes() error = %v", err)
		}
		if len(notes) != 2 || notes[0].ID != first.ID || notes[1].ID != second.ID {
			t.Fatalf("SearchNotes() = %d notes, want both in insertion order", len(notes))
		}

		byTag, _ := s.SearchNotes(ctx, subject, "GRAPH")
		if !containsNote(byTag, first.ID) {
			t.Error("tag search is not case-insensitive")
		}
		literal, _ := s.SearchNotes(ctx, subject, "0%_sure-"+sid)
		if len(literal) != 1 || literal[0].ID != second.ID {
			t.Errorf("wildcards in query were not treated literally: %d results", len(literal))
		}

		if err := s.DeleteNote(ctx, subject, first.ID); err != nil {
			t.Fatalf("DeleteNote() error = %v", err)
		}
		if err := s.DeleteNote(ctx, subject, first.ID); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("second DeleteNote() err = %v", err)
		}
		if err := s.DeleteNote(ctx, topic.Python, second.ID); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("DeleteNote() under the wrong subject err = %v", err)
		}
	})

	t.Run("solutions", func(t *testing.T) {
		sol, err := s.AddSolution(ctx, subject, "recursion limit hit "+sid, "add a conditional edge to END", []string{"loops"})
		if err != nil {
			t.Fatalf("AddSolution() error = %v", err)
		}
		for _, q := range []string{"RECURSION LIMIT HIT " + sid, "conditional edge", "loops"} {
			found, err := s.SearchSolutions(ctx, subject, q)
			if err != nil {
				t.Fatalf("SearchSolutions(%q) error = %v", q, err)
			}
			if !containsSolution(found, sol.ID) {
				t.Errorf("SearchSolutions(%q) missed the solution", q)
			}
		}
		all, _ := s.ListSolutions(ctx, subject)
		if !containsSolution(all, sol.ID) {
			t.Error("ListSolutions() missed the solution")
		}
		if err := s.DeleteSolution(ctx, subject, sol.ID); err != nil {
			t.Errorf("DeleteSolution() error = %v", err)
		}
	})

	t.Run("history", func(t *testing.T) {
		for i, content := range []string{"q1", "a1", "q2", "a2"} {
			role := message.RoleUser
			if i%2 == 1 {
				role = message.RoleAssistant
			}
			if _, err := s.AppendHistory(ctx, sid, subject, role, content); err != nil {
				t.Fatalf("AppendHistory() error = %v", err)
			}
			time.Sleep(2 * time.Millisecond)
		}
		_, _ = s.AppendHistory(ctx, sid, topic.Python, message.RoleUser, "py")

		recent, err := s.History(ctx, sid, subject, 3)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if got := contents(recent); len(got) != 3 || got[0] != "a1" || got[2] != "a2" {
			t.Errorf("History() = %v, want [a1 q2 a2]", got)
		}

		all, _ := s.AllHistory(ctx, sid, 50)
		if got := contents(all); len(got) != 5 || got[4] != "py" {
			t.Errorf("AllHistory() = %v", got)
		}

		had, err := s.ClearHistory(ctx, sid, subject)
		if err != nil || !had {
			t.Fatalf("ClearHistory() = %v, %v", had, err)
		}
		left, _ := s.AllHistory(ctx, sid, 0)
		if got := contents(left); len(got) != 1 || got[0] != "py" {
			t.Errorf("after subject clear = %v", got)
		}
		_, _ = s.ClearHistory(ctx, sid, topic.None)
		if had, _ := s.ClearHistory(ctx, sid, topic.None); had {
			t.Error("ClearHistory() on an empty session reported history")
		}
	})
}

func containsNote(notes []*study.Note, id string) bool {
	for _, n := range notes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func containsSolution(sols []*study.Solution, id string) bool {
	for _, s := range sols {
		if s.ID == id {
			return true
		}
	}
	return false
}

func contents(entries []*study.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, NewInMemoryStore(), "mem-"+uuid.NewString())
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	n, _ := s.AddNote(ctx, topic.Python, "original", []string{"a"})
	n.Content = "mutated"

	notes, _ := s.ListNotes(ctx, topic.Python)
	notes[0].Tags[0] = "b"
	again, _ := s.ListNotes(ctx, topic.Python)
	if again[0].Content != "original" || again[0].Tags[0] != "a" {
		t.Errorf("store state leaked through returned values: %+v", again[0])
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STUDYBUDDY_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STUDYBUDDY_POSTGRES_DSN not set, skipping PostgreSQL store tests")
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Skipf("Failed to connect to PostgreSQL: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s, "pg-"+uuid.NewString())
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB store tests")
	}
	s, err := NewMongoStore(context.Background(), &MongoConfig{URI: uri, Database: "studybuddy_test"})
	if err != nil {
		t.Skipf("Failed to connect to MongoDB: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s, "mongo-"+uuid.NewString())
}

func TestLikePattern(t *testing.T) {
	if got := likePattern(`50%_off\`); got != `%50\%\_off\\%` {
		t.Errorf("likePattern() = %q", got)
	}
}
