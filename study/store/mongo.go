package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

// MongoStore implements study.Store using MongoDB
type MongoStore struct {
	client    *mongo.Client
	notes     *mongo.Collection
	solutions *mongo.Collection
	history   *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI      string
	Database string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:      "mongodb://localhost:27017",
		Database: "studybuddy",
	}
}

// Documents carry created_ns, the creation time in nanoseconds, so that
// listings sort in insertion order even when timestamps collide at
// millisecond precision.
type mongoNote struct {
	ID        string    `bson:"_id"`
	Subject   string    `bson:"subject"`
	Content   string    `bson:"content"`
	Tags      []string  `bson:"tags"`
	CreatedAt time.Time `bson:"created_at"`
	CreatedNS int64     `bson:"created_ns"`
}

type mongoSolution struct {
	ID        string    `bson:"_id"`
	Subject   string    `bson:"subject"`
	Problem   string    `bson:"problem"`
	Solution  string    `bson:"solution"`
	Tags      []string  `bson:"tags"`
	CreatedAt time.Time `bson:"created_at"`
	CreatedNS int64     `bson:"created_ns"`
}

type mongoEntry struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	Subject   string    `bson:"subject"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	CreatedNS int64     `bson:"created_ns"`
}

// NewMongoStore creates a new MongoDB-based study store
func NewMongoStore(ctx context.Context, config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)
	store := &MongoStore{
		client:    client,
		notes:     db.Collection("notes"),
		solutions: db.Collection("solutions"),
		history:   db.Collection("history"),
	}
	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	bySubject := mongo.IndexModel{Keys: bson.D{{Key: "subject", Value: 1}, {Key: "created_ns", Value: 1}}}
	if _, err := s.notes.Indexes().CreateOne(ctx, bySubject); err != nil {
		return err
	}
	if _, err := s.solutions.Indexes().CreateOne(ctx, bySubject); err != nil {
		return err
	}
	_, err := s.history.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "subject", Value: 1}, {Key: "created_ns", Value: -1}},
	})
	return err
}

// AddNote inserts a note document
func (s *MongoStore) AddNote(ctx context.Context, t topic.Topic, content string, tags []string) (*study.Note, error) {
	n := study.NewNote(t, content, tags)
	doc := mongoNote{
		ID: n.ID, Subject: string(n.Topic), Content: n.Content, Tags: n.Tags,
		CreatedAt: n.CreatedAt, CreatedNS: n.CreatedAt.UnixNano(),
	}
	if _, err := s.notes.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to add note: %w", err)
	}
	return n, nil
}

// ListNotes finds the notes for a subject
func (s *MongoStore) ListNotes(ctx context.Context, t topic.Topic) ([]*study.Note, error) {
	return s.findNotes(ctx, bson.M{"subject": string(t)})
}

// SearchNotes finds notes matching query case-insensitively
func (s *MongoStore) SearchNotes(ctx context.Context, t topic.Topic, query string) ([]*study.Note, error) {
	re := containsRegex(query)
	return s.findNotes(ctx, bson.M{
		"subject": string(t),
		"$or":     bson.A{bson.M{"content": re}, bson.M{"tags": re}},
	})
}

func (s *MongoStore) findNotes(ctx context.Context, filter bson.M) ([]*study.Note, error) {
	cursor, err := s.notes.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_ns", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoNote
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}
	notes := make([]*study.Note, len(docs))
	for i, d := range docs {
		notes[i] = &study.Note{
			ID: d.ID, Topic: topic.Topic(d.Subject), Content: d.Content,
			Tags: nonNil(d.Tags), CreatedAt: d.CreatedAt,
		}
	}
	return notes, nil
}

// DeleteNote deletes a note document by ID
func (s *MongoStore) DeleteNote(ctx context.Context, t topic.Topic, id string) error {
	return deleteOne(ctx, s.notes, "note", t, id)
}

// AddSolution inserts a solution document
func (s *MongoStore) AddSolution(ctx context.Context, t topic.Topic, problem, solution string, tags []string) (*study.Solution, error) {
	sol := study.NewSolution(t, problem, solution, tags)
	doc := mongoSolution{
		ID: sol.ID, Subject: string(sol.Topic), Problem: sol.Problem, Solution: sol.Solution,
		Tags: sol.Tags, CreatedAt: sol.CreatedAt, CreatedNS: sol.CreatedAt.UnixNano(),
	}
	if _, err := s.solutions.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to add solution: %w", err)
	}
	return sol, nil
}

// ListSolutions finds the solutions for a subject
func (s *MongoStore) ListSolutions(ctx context.Context, t topic.Topic) ([]*study.Solution, error) {
	return s.findSolutions(ctx, bson.M{"subject": string(t)})
}

// SearchSolutions finds solutions matching query case-insensitively
func (s *MongoStore) SearchSolutions(ctx context.Context, t topic.Topic, query string) ([]*study.Solution, error) {
	re := containsRegex(query)
	return s.findSolutions(ctx, bson.M{
		"subject": string(t),
		"$or":     bson.A{bson.M{"problem": re}, bson.M{"solution": re}, bson.M{"tags": re}},
	})
}

func (s *MongoStore) findSolutions(ctx context.Context, filter bson.M) ([]*study.Solution, error) {
	cursor, err := s.solutions.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_ns", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query solutions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoSolution
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode solutions: %w", err)
	}
	solutions := make([]*study.Solution, len(docs))
	for i, d := range docs {
		solutions[i] = &study.Solution{
			ID: d.ID, Topic: topic.Topic(d.Subject), Problem: d.Problem, Solution: d.Solution,
			Tags: nonNil(d.Tags), CreatedAt: d.CreatedAt,
		}
	}
	return solutions, nil
}

// DeleteSolution deletes a solution document by ID
func (s *MongoStore) DeleteSolution(ctx context.Context, t topic.Topic, id string) error {
	return deleteOne(ctx, s.solutions, "solution", t, id)
}

// AppendHistory inserts a history entry document
func (s *MongoStore) AppendHistory(ctx context.Context, sessionID string, t topic.Topic, role message.Role, content string) (*study.Entry, error) {
	e := study.NewEntry(sessionID, t, role, content)
	doc := mongoEntry{
		ID: e.ID, SessionID: e.SessionID, Subject: string(e.Topic), Role: string(e.Role),
		Content: e.Content, CreatedAt: e.CreatedAt, CreatedNS: e.CreatedAt.UnixNano(),
	}
	if _, err := s.history.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}
	return e, nil
}

// History finds the newest limit entries for one subject
func (s *MongoStore) History(ctx context.Context, sessionID string, t topic.Topic, limit int) ([]*study.Entry, error) {
	return s.findHistory(ctx, bson.M{"session_id": sessionID, "subject": string(t)}, limit)
}

// AllHistory finds the newest limit entries across subjects
func (s *MongoStore) AllHistory(ctx context.Context, sessionID string, limit int) ([]*study.Entry, error) {
	return s.findHistory(ctx, bson.M{"session_id": sessionID}, limit)
}

// findHistory fetches the newest limit entries and returns them oldest-first.
func (s *MongoStore) findHistory(ctx context.Context, filter bson.M, limit int) ([]*study.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_ns", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.history.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoEntry
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	entries := make([]*study.Entry, len(docs))
	for i, d := range docs {
		entries[len(docs)-1-i] = &study.Entry{
			ID: d.ID, SessionID: d.SessionID, Topic: topic.Topic(d.Subject),
			Role: message.Role(d.Role), Content: d.Content, CreatedAt: d.CreatedAt,
		}
	}
	return entries, nil
}

// ClearHistory deletes the history of one subject, or of all subjects
func (s *MongoStore) ClearHistory(ctx context.Context, sessionID string, t topic.Topic) (bool, error) {
	n, err := s.history.CountDocuments(ctx, bson.M{"session_id": sessionID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check history: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	filter := bson.M{"session_id": sessionID}
	if t != topic.None {
		filter["subject"] = string(t)
	}
	if _, err := s.history.DeleteMany(ctx, filter); err != nil {
		return false, fmt.Errorf("failed to clear history: %w", err)
	}
	return true, nil
}

// Close closes the MongoDB connection
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks if MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func deleteOne(ctx context.Context, coll *mongo.Collection, kind string, t topic.Topic, id string) error {
	result, err := coll.DeleteOne(ctx, bson.M{"_id": id, "subject": string(t)})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, errors.ErrNotFound)
	}
	return nil
}

// containsRegex matches query as a literal, case-insensitive substring.
func containsRegex(query string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
