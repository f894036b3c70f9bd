// Package recorder appends each completed exchange to the study history.
package recorder

import (
	"log/slog"

	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/middleware"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/study"
	"github.com/sweetpotato0/studybuddy/topic"
)

// HistoryRecorder stores the user utterance and the final reply of every
// successful turn under the turn's resolved subject. Storage failures are
// logged and do not fail the turn.
type HistoryRecorder struct {
	store  study.Store
	logger *slog.Logger
}

// New creates a history recording middleware.
func New(store study.Store, logger *slog.Logger) *HistoryRecorder {
	if logger == nil {
		logger = logging.WithComponent("recorder")
	}
	return &HistoryRecorder{store: store, logger: logger}
}

// Name returns the middleware name
func (m *HistoryRecorder) Name() string {
	return "HistoryRecorder"
}

// Execute records the exchange after the rest of the chain succeeds.
func (m *HistoryRecorder) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := next(ctx); err != nil {
		return err
	}
	if m.store == nil || ctx.Response == nil {
		return nil
	}

	t := subjectOf(ctx.Metadata["topic"])
	c := ctx.Context()
	if _, err := m.store.AppendHistory(c, ctx.SessionKey, t, message.RoleUser, ctx.Input); err != nil {
		m.logger.Warn("record user message failed", "session", ctx.SessionKey, "error", err)
		return nil
	}
	if _, err := m.store.AppendHistory(c, ctx.SessionKey, t, message.RoleAssistant, ctx.Response.Content); err != nil {
		m.logger.Warn("record reply failed", "session", ctx.SessionKey, "error", err)
	}
	return nil
}

func subjectOf(v any) topic.Topic {
	var t topic.Topic
	switch s := v.(type) {
	case topic.Topic:
		t = s
	case string:
		t = topic.Parse(s)
	}
	if !t.IsSpecific() {
		return topic.General
	}
	return t
}
