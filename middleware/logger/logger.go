// Package logger logs each turn with slog.
package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/studybuddy/middleware"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
)

// TurnLogger logs the start and outcome of every turn.
type TurnLogger struct {
	logger *slog.Logger
}

// New creates a turn logging middleware. A nil logger uses the shared one.
func New(logger *slog.Logger) *TurnLogger {
	if logger == nil {
		logger = logging.WithComponent("turn")
	}
	return &TurnLogger{logger: logger}
}

// Name returns the middleware name
func (m *TurnLogger) Name() string {
	return "TurnLogger"
}

// Execute logs the request and the response.
func (m *TurnLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := time.Now()
	m.logger.Debug("turn started", "session", ctx.SessionKey, "input_chars", len(ctx.Input))

	err := next(ctx)

	attrs := []any{"session", ctx.SessionKey, "duration", time.Since(start)}
	for _, key := range []string{"topic", "style", "mode"} {
		if v, ok := ctx.Metadata[key]; ok {
			attrs = append(attrs, key, v)
		}
	}
	if err != nil {
		m.logger.Warn("turn failed", append(attrs, "error", err)...)
		return err
	}
	if ctx.Response != nil {
		attrs = append(attrs, "reply_chars", len(ctx.Response.Content))
	}
	m.logger.Info("turn completed", attrs...)
	return nil
}
