// Package agent assembles the per-turn instructions and produces the
// assistant reply through a completion backend.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/studybuddy/history"
	"github.com/sweetpotato0/studybuddy/intent"
	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/prompt"
	"github.com/sweetpotato0/studybuddy/router"
	"github.com/sweetpotato0/studybuddy/tool"
	"github.com/sweetpotato0/studybuddy/topic"
)

// FallbackReply is returned to the learner when no reply could be generated.
const FallbackReply = "Sorry, I couldn't put an answer together just now. Could you rephrase your question or tell me which subject it's about?"

// Request carries everything the responder needs for one generation call.
type Request struct {
	Topic        topic.Topic
	Style        router.Style
	Decision     router.Decision
	Flags        intent.Flags
	LastQuestion string
	// Messages is the conversation so far, including the current utterance
	// and any tool round-trips of this turn.
	Messages []*message.Message
}

// Responder generates replies.
type Responder struct {
	client       llm.Client
	tools        *tool.Registry
	counter      history.Counter
	budget       int
	instructions *prompt.Manager
	logger       *slog.Logger
}

// Option configures a Responder.
type Option func(*Responder)

// WithTools binds the registry's tools to every generation call.
func WithTools(registry *tool.Registry) Option {
	return func(r *Responder) {
		r.tools = registry
	}
}

// WithTokenBudget limits the history window sent to the backend.
func WithTokenBudget(budget int, counter history.Counter) Option {
	return func(r *Responder) {
		r.budget = budget
		if counter != nil {
			r.counter = counter
		}
	}
}

// WithLogger overrides the responder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a responder backed by client.
func New(client llm.Client, opts ...Option) *Responder {
	r := &Responder{
		client:       client,
		counter:      history.ApproxCounter{},
		instructions: prompt.NewManager().MustRegister("tools", toolAdvisory),
		logger:       logging.WithComponent("responder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Instructions assembles the system instructions for req. Order matters:
// formatting rules, overrides, expertise, tool advisory, then the mode.
func (r *Responder) Instructions(req *Request) string {
	b := prompt.NewBuilder()
	simple := req.Style == router.StyleSimple

	if simple {
		b.Add(simpleTemplate)
	} else {
		b.Add(brevityRules)
		if req.Flags.Verbose {
			b.Add(verboseOverride)
		}
		if req.Flags.Code {
			b.Add(codeOverride)
		}
	}

	b.Add(topic.Expertise(req.Topic))

	if r.tools != nil && r.tools.Len() > 0 {
		advisory, err := r.instructions.Render("tools", map[string]any{
			"Tools": r.tools.Schemas(),
			"Topic": req.Topic.String(),
		})
		if err != nil {
			r.logger.Error("render tool advisory", "error", err)
		} else {
			b.Add(advisory)
		}
	}

	if simple && req.Flags.Simplify && req.LastQuestion != "" {
		b.AddFormat(simplifyReferent, req.LastQuestion)
	}

	b.Add(modeDirectives[req.Decision.Mode])
	if req.Decision.Mode == router.ModeClarify && len(req.Decision.MissingInfo) > 0 {
		b.AddFormat("Information still missing: %s.", strings.Join(req.Decision.MissingInfo, "; "))
	}
	if req.Decision.Committed {
		b.Add(committedDirective)
	}
	return b.Build()
}

// Respond generates the next assistant message. The reply may carry tool
// calls, which the caller executes before calling Respond again.
func (r *Responder) Respond(ctx context.Context, req *Request) (*message.Message, error) {
	if r.client == nil {
		return nil, fmt.Errorf("responder has no completion backend")
	}

	genReq := &llm.Request{
		Instructions: r.Instructions(req),
		Messages:     history.Window(req.Messages, r.budget, r.counter),
	}
	if r.tools != nil {
		genReq.Tools = r.tools.Schemas()
	}

	resp, err := r.client.Generate(ctx, genReq)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	if resp == nil || resp.Message == nil {
		return nil, llm.ErrEmptyResponse
	}

	msg := resp.Message
	msg.Role = message.RoleAssistant
	msg.Content = strings.TrimSpace(msg.Content)
	r.logger.Debug("reply generated",
		"topic", req.Topic, "mode", req.Decision.Mode, "tool_calls", len(msg.ToolCalls))
	return msg, nil
}
