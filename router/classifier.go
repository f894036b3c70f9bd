// Package router turns an utterance and the session's prior context into a
// typed routing decision.
package router

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/sweetpotato0/studybuddy/intent"
	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/prompt"
	"github.com/sweetpotato0/studybuddy/topic"
)

const (
	DefaultMinConfidence     = 0.65
	DefaultMaxClarifications = 2
)

const classifierTemplate = `You route messages for a study assistant. Classify the learner's message.

Modes:
- ANSWER: a direct question with a clear subject
- TEACH: the learner wants to learn a concept step by step
- QUIZ: the learner wants to be tested
- DEBUG: the learner has an error or broken code
- ASK_CLARIFY: the subject or goal is too ambiguous to answer well
- SIMPLIFY: the learner did not understand the previous explanation

Topics: {{join .Topics ", "}}, general (fits none of them), unknown.

Previous topic: {{.PriorTopic}}
Previous substantive question: {{if .LastQuestion}}{{quote .LastQuestion}}{{else}}none{{end}}

Follow-ups that only make sense with the previous topic belong to that topic.
Reply with JSON only:
{"mode": "<MODE>", "topic": "<topic>", "confidence": <0..1>, "missing_info": ["..."], "rationale": "<one sentence>"}`

// Input is what the classifier knows about a turn.
type Input struct {
	Utterance    string
	PriorTopic   topic.Topic
	LastQuestion string
	// Attempts is the clarification-attempt counter before this turn.
	Attempts int
	Flags    intent.Flags
}

// Classifier produces routing decisions. It never fails: backend and parse
// errors degrade to a clarification decision.
type Classifier struct {
	client            llm.Client
	prompts           *prompt.Manager
	minConfidence     float64
	maxClarifications int
	logger            *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMinConfidence sets the confidence gate threshold.
func WithMinConfidence(v float64) Option {
	return func(c *Classifier) {
		c.minConfidence = v
	}
}

// WithMaxClarifications caps consecutive clarification turns.
func WithMaxClarifications(n int) Option {
	return func(c *Classifier) {
		c.maxClarifications = n
	}
}

// WithLogger overrides the classifier logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier creates a classifier backed by client.
func NewClassifier(client llm.Client, opts ...Option) *Classifier {
	c := &Classifier{
		client:            client,
		prompts:           prompt.NewManager().MustRegister("classifier", classifierTemplate),
		minConfidence:     DefaultMinConfidence,
		maxClarifications: DefaultMaxClarifications,
		logger:            logging.WithComponent("router"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the gated routing decision for in.
func (c *Classifier) Classify(ctx context.Context, in Input) Decision {
	if in.Flags.Simplify && in.PriorTopic.IsSet() {
		return Decision{
			Mode:        ModeSimplify,
			Topic:       in.PriorTopic,
			Confidence:  1.0,
			MissingInfo: []string{},
			Rationale:   "simplification requested for the current topic",
			Source:      SourceHeuristic,
		}
	}

	d := c.classify(ctx, in)
	return c.Gate(d, in.Attempts, in.PriorTopic)
}

func (c *Classifier) classify(ctx context.Context, in Input) Decision {
	prior := in.PriorTopic
	instructions, err := c.prompts.Render("classifier", map[string]any{
		"Topics":       topic.Names(topic.Specific),
		"PriorTopic":   prior.String(),
		"LastQuestion": in.LastQuestion,
	})
	if err != nil {
		c.logger.Error("render classifier prompt", "error", err)
		return Fallback(prior, "classifier prompt unavailable")
	}

	text, err := llm.Complete(ctx, c.client, instructions, in.Utterance)
	if err != nil {
		c.logger.Warn("classifier backend failed, asking for clarification", "error", err)
		return Fallback(prior, "classifier unavailable")
	}

	d := Parse(text, prior)
	if d.Source == SourceFallback {
		c.logger.Warn("classifier reply was not parseable", "reply", truncate(text, 200))
	}
	return d
}

// Gate forces a clarification when confidence is low and the attempt budget
// is not spent. Once it is spent, a clarification is turned into a committed
// best-guess answer so the conversation cannot stall.
func (c *Classifier) Gate(d Decision, attempts int, prior topic.Topic) Decision {
	if d.Mode == ModeSimplify && d.Source == SourceHeuristic {
		return d
	}
	if attempts < c.maxClarifications {
		if d.Confidence < c.minConfidence && d.Mode != ModeClarify {
			c.logger.Debug("confidence gate forced clarification",
				"confidence", d.Confidence, "mode", d.Mode, "attempts", attempts)
			d.Mode = ModeClarify
			d.Gated = true
		}
		return d
	}
	if d.Mode == ModeClarify {
		c.logger.Debug("clarification budget spent, committing to best guess", "attempts", attempts)
		d.Mode = ModeAnswer
		d.Committed = true
		if !d.Topic.IsSpecific() {
			d.Topic = ResolveTopic(Decision{Topic: topic.Unknown}, prior)
		}
	}
	return d
}

// truncate cuts s to at most n bytes at a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
