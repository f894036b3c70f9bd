// Package session holds the per-key conversation context that carries over
// between turns, and the manager that serializes access to it.
package session

import (
	"time"

	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/router"
	"github.com/sweetpotato0/studybuddy/topic"
)

// Record is the serializable context of one session. It is replaced as a
// whole once per turn.
type Record struct {
	Key      string             `json:"key"`
	Messages []*message.Message `json:"messages"`
	Topic    topic.Topic        `json:"topic"`
	Style    router.Style       `json:"style"`
	// LastQuestion is the last utterance that locked a specific topic.
	LastQuestion    string    `json:"last_question,omitempty"`
	LastAnswer      string    `json:"last_answer,omitempty"`
	ClarifyAttempts int       `json:"clarify_attempts"`
	Turns           int       `json:"turns"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewRecord returns an empty record for key.
func NewRecord(key string) *Record {
	now := time.Now()
	return &Record{
		Key:       key,
		Style:     router.StyleNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Messages = message.CloneMessages(r.Messages)
	return &out
}
