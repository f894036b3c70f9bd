// Package quality implements the advisory quality gate, the single revision
// pass and the long-reply condensation used at the end of a turn.
package quality

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/pkg/llmjson"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/prompt"
	"github.com/sweetpotato0/studybuddy/topic"
)

// DefaultFeedback is used when a failing verdict carries no feedback.
const DefaultFeedback = "Add concrete, domain-specific mechanisms and remove unsupported claims."

const verifyTemplate = `You review answers given by a {{.Topic}} tutor.

Learner question:
{{.Question}}

Candidate answer:
{{.Answer}}

Rubric:
1. Directness: the answer addresses the question asked.
2. Specificity: it cites at least one concrete mechanism{{if .Criteria}}, such as {{join .Criteria ", "}}{{end}}.
3. Honesty: uncertain claims are flagged instead of stated as fact.

Reply with JSON only: {"pass": true|false, "feedback": "<what to fix, empty when passing>"}`

const reviseTemplate = `Rewrite the answer below for a learner studying {{.Topic}}.

Learner question:
{{.Question}}

Previous answer:
{{.Answer}}

Reviewer feedback:
{{.Feedback}}

Keep the same structure and roughly the same length. Add concrete {{.Topic}} specifics. Replace any unsupported claim with a concrete detail or say plainly that you are not sure. Return only the rewritten answer.`

const condenseTemplate = `Shorten this answer to at most {{.Limit}} words for a learner.
Use plain language, avoid jargon, and leave out code blocks.
Keep the key point and one example if there is one.

Answer:
{{.Answer}}`

// Verdict is the typed result of a verification call.
type Verdict struct {
	Pass     bool   `json:"pass"`
	Feedback string `json:"feedback,omitempty"`
	// Advisory is set when the verdict was defaulted because the backend
	// failed or replied with something unparseable.
	Advisory bool `json:"advisory,omitempty"`
}

// Gate verifies, revises and condenses replies through a completion backend.
type Gate struct {
	client        llm.Client
	prompts       *prompt.Manager
	condenseWords int
	logger        *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithCondenseWords sets the word budget for condensed replies.
func WithCondenseWords(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.condenseWords = n
		}
	}
}

// WithLogger overrides the gate logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a gate backed by client.
func NewGate(client llm.Client, opts ...Option) *Gate {
	g := &Gate{
		client: client,
		prompts: prompt.NewManager().
			MustRegister("verify", verifyTemplate).
			MustRegister("revise", reviseTemplate).
			MustRegister("condense", condenseTemplate),
		condenseWords: 150,
		logger:        logging.WithComponent("quality"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Verify grades answer against the rubric for t. Backend errors and
// unparseable verdicts pass.
func (g *Gate) Verify(ctx context.Context, t topic.Topic, question, answer string) Verdict {
	instructions, err := g.prompts.Render("verify", map[string]any{
		"Topic":    t.String(),
		"Question": question,
		"Answer":   answer,
		"Criteria": topic.Criteria(t),
	})
	if err != nil {
		g.logger.Error("render verify prompt", "error", err)
		return Verdict{Pass: true, Advisory: true}
	}

	text, err := llm.Complete(ctx, g.client, instructions, "Grade the candidate answer.")
	if err != nil {
		g.logger.Warn("verifier unavailable, passing reply", "topic", t, "error", err)
		return Verdict{Pass: true, Advisory: true}
	}

	v, ok := ParseVerdict(text)
	if !ok {
		g.logger.Warn("verifier reply was not parseable, passing reply", "topic", t)
	}
	return v
}

// ParseVerdict decodes a verdict from backend text. The boolean reports
// whether a verdict could be read; when it could not, the result passes.
func ParseVerdict(text string) (Verdict, bool) {
	raw, ok := llmjson.ExtractObject(text)
	if !ok {
		return Verdict{Pass: true, Advisory: true}, false
	}

	pass, ok := readPass(raw)
	if !ok {
		return Verdict{Pass: true, Advisory: true}, false
	}

	v := Verdict{Pass: pass}
	for _, key := range []string{"feedback", "reason", "issues"} {
		if s, ok := raw[key].(string); ok && strings.TrimSpace(s) != "" {
			v.Feedback = strings.TrimSpace(s)
			break
		}
	}
	if !v.Pass && v.Feedback == "" {
		v.Feedback = DefaultFeedback
	}
	return v, true
}

func readPass(raw map[string]any) (bool, bool) {
	for _, key := range []string{"pass", "passed"} {
		switch v := raw[key].(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "pass":
				return true, true
			case "false", "no", "fail":
				return false, true
			}
		}
	}
	if s, ok := raw["verdict"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "pass", "passed", "approve", "approved":
			return true, true
		case "fail", "failed", "reject", "rejected":
			return false, true
		}
	}
	return false, false
}

// Revise asks for one rewrite of answer. On failure the original answer is
// returned with revised=false.
func (g *Gate) Revise(ctx context.Context, t topic.Topic, question, answer, feedback string) (string, bool) {
	if feedback == "" {
		feedback = DefaultFeedback
	}
	instructions, err := g.prompts.Render("revise", map[string]any{
		"Topic":    t.String(),
		"Question": question,
		"Answer":   answer,
		"Feedback": feedback,
	})
	if err != nil {
		g.logger.Error("render revise prompt", "error", err)
		return answer, false
	}

	text, err := llm.Complete(ctx, g.client, instructions, "Rewrite the answer.")
	if err != nil || text == "" {
		g.logger.Warn("revision failed, keeping original reply", "topic", t, "error", err)
		return answer, false
	}
	return text, true
}

// Condense shortens answer. On failure the original answer is returned with
// condensed=false.
func (g *Gate) Condense(ctx context.Context, answer string) (string, bool) {
	instructions, err := g.prompts.Render("condense", map[string]any{
		"Limit":  g.condenseWords,
		"Answer": answer,
	})
	if err != nil {
		g.logger.Error("render condense prompt", "error", err)
		return answer, false
	}

	text, err := llm.Complete(ctx, g.client, instructions, "Condense the answer.")
	if err != nil || text == "" {
		g.logger.Warn("condense failed, keeping original reply", "error", err)
		return answer, false
	}
	return text, true
}
