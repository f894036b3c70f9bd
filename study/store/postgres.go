package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

// PostgresStore implements study.Store using PostgreSQL. Rows carry a serial
// column so listings keep insertion order.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with the lib/pq connection string dsn and creates
// the tables if they do not exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS study_notes (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(64) UNIQUE NOT NULL,
		subject VARCHAR(32) NOT NULL,
		content TEXT NOT NULL,
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_study_notes_subject ON study_notes(subject, seq);

	CREATE TABLE IF NOT EXISTS study_solutions (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(64) UNIQUE NOT NULL,
		subject VARCHAR(32) NOT NULL,
		problem TEXT NOT NULL,
		solution TEXT NOT NULL,
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_study_solutions_subject ON study_solutions(subject, seq);

	CREATE TABLE IF NOT EXISTS study_history (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(64) UNIQUE NOT NULL,
		session_id VARCHAR(255) NOT NULL,
		subject VARCHAR(32) NOT NULL,
		role VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_study_history_session ON study_history(session_id, subject, seq);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// AddNote inserts a note
func (s *PostgresStore) AddNote(ctx context.Context, t topic.Topic, content string, tags []string) (*study.Note, error) {
	n := study.NewNote(t, content, tags)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_notes (id, subject, content, tags, created_at) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, string(n.Topic), n.Content, pq.Array(n.Tags), n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add note: %w", err)
	}
	return n, nil
}

// ListNotes retrieves the notes for a subject
func (s *PostgresStore) ListNotes(ctx context.Context, t topic.Topic) ([]*study.Note, error) {
	return s.queryNotes(ctx,
		`SELECT id, subject, content, tags, created_at FROM study_notes WHERE subject = $1 ORDER BY seq`,
		string(t))
}

// SearchNotes retrieves notes matching query
func (s *PostgresStore) SearchNotes(ctx context.Context, t topic.Topic, query string) ([]*study.Note, error) {
	return s.queryNotes(ctx,
		`SELECT id, subject, content, tags, created_at FROM study_notes
		 WHERE subject = $1 AND (content ILIKE $2 ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $2 ESCAPE '\'))
		 ORDER BY seq`,
		string(t), likePattern(query))
}

func (s *PostgresStore) queryNotes(ctx context.Context, query string, args ...any) ([]*study.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*study.Note, 0)
	for rows.Next() {
		n := &study.Note{}
		var subject string
		if err := rows.Scan(&n.ID, &subject, &n.Content, pq.Array(&n.Tags), &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.Topic = topic.Topic(subject)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

// DeleteNote deletes a note by ID
func (s *PostgresStore) DeleteNote(ctx context.Context, t topic.Topic, id string) error {
	return s.deleteByID(ctx, "study_notes", "note", t, id)
}

// AddSolution inserts a solution
func (s *PostgresStore) AddSolution(ctx context.Context, t topic.Topic, problem, solution string, tags []string) (*study.Solution, error) {
	sol := study.NewSolution(t, problem, solution, tags)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_solutions (id, subject, problem, solution, tags, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sol.ID, string(sol.Topic), sol.Problem, sol.Solution, pq.Array(sol.Tags), sol.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add solution: %w", err)
	}
	return sol, nil
}

// ListSolutions retrieves the solutions for a subject
func (s *PostgresStore) ListSolutions(ctx context.Context, t topic.Topic) ([]*study.Solution, error) {
	return s.querySolutions(ctx,
		`SELECT id, subject, problem, solution, tags, created_at FROM study_solutions WHERE subject = $1 ORDER BY seq`,
		string(t))
}

// SearchSolutions retrieves solutions matching query
func (s *PostgresStore) SearchSolutions(ctx context.Context, t topic.Topic, query string) ([]*study.Solution, error) {
	return s.querySolutions(ctx,
		`SELECT id, subject, problem, solution, tags, created_at FROM study_solutions
		 WHERE subject = $1 AND (problem ILIKE $2 ESCAPE '\' OR solution ILIKE $2 ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $2 ESCAPE '\'))
		 ORDER BY seq`,
		string(t), likePattern(query))
}

func (s *PostgresStore) querySolutions(ctx context.Context, query string, args ...any) ([]*study.Solution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query solutions: %w", err)
	}
	defer rows.Close()

	solutions := make([]*study.Solution, 0)
	for rows.Next() {
		sol := &study.Solution{}
		var subject string
		if err := rows.Scan(&sol.ID, &subject, &sol.Problem, &sol.Solution, pq.Array(&sol.Tags), &sol.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan solution: %w", err)
		}
		sol.Topic = topic.Topic(subject)
		solutions = append(solutions, sol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating solutions: %w", err)
	}
	return solutions, nil
}

// DeleteSolution deletes a solution by ID
func (s *PostgresStore) DeleteSolution(ctx context.Context, t topic.Topic, id string) error {
	return s.deleteByID(ctx, "study_solutions", "solution", t, id)
}

func (s *PostgresStore) deleteByID(ctx context.Context, table, kind string, t topic.Topic, id string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE subject = $1 AND id = $2", table), string(t), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, errors.ErrNotFound)
	}
	return nil
}

// AppendHistory inserts a history entry
func (s *PostgresStore) AppendHistory(ctx context.Context, sessionID string, t topic.Topic, role message.Role, content string) (*study.Entry, error) {
	e := study.NewEntry(sessionID, t, role, content)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO study_history (id, session_id, subject, role, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.SessionID, string(e.Topic), string(e.Role), e.Content, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}
	return e, nil
}

// History retrieves the newest limit entries for one subject
func (s *PostgresStore) History(ctx context.Context, sessionID string, t topic.Topic, limit int) ([]*study.Entry, error) {
	return s.queryHistory(ctx,
		`SELECT id, session_id, subject, role, content, created_at FROM study_history
		 WHERE session_id = $1 AND subject = $2 ORDER BY seq DESC LIMIT $3`,
		sessionID, string(t), limitArg(limit))
}

// AllHistory retrieves the newest limit entries across subjects
func (s *PostgresStore) AllHistory(ctx context.Context, sessionID string, limit int) ([]*study.Entry, error) {
	return s.queryHistory(ctx,
		`SELECT id, session_id, subject, role, content, created_at FROM study_history
		 WHERE session_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		sessionID, limitArg(limit))
}

// queryHistory expects newest-first rows and returns them oldest-first.
func (s *PostgresStore) queryHistory(ctx context.Context, query string, args ...any) ([]*study.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]*study.Entry, 0)
	for rows.Next() {
		e := &study.Entry{}
		var subject, role string
		if err := rows.Scan(&e.ID, &e.SessionID, &subject, &role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.Topic = topic.Topic(subject)
		e.Role = message.Role(role)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ClearHistory deletes the history of one subject, or of all subjects
func (s *PostgresStore) ClearHistory(ctx context.Context, sessionID string, t topic.Topic) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM study_history WHERE session_id = $1)`, sessionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check history: %w", err)
	}
	if !exists {
		return false, nil
	}

	var err error
	if t == topic.None {
		_, err = s.db.ExecContext(ctx, `DELETE FROM study_history WHERE session_id = $1`, sessionID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM study_history WHERE session_id = $1 AND subject = $2`, sessionID, string(t))
	}
	if err != nil {
		return false, fmt.Errorf("failed to clear history: %w", err)
	}
	return true, nil
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks if PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring ILIKE pattern with wildcards in query escaped.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

// limitArg maps a non-positive limit to NULL, which PostgreSQL treats as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
