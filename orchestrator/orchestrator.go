// Package orchestrator runs one conversational turn through the routing,
// response, tool, verification and revision states, and commits the result
// to the session in a single replace.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/studybuddy/agent"
	"github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/graph"
	"github.com/sweetpotato0/studybuddy/history"
	"github.com/sweetpotato0/studybuddy/intent"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/middleware"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/pkg/metrics"
	"github.com/sweetpotato0/studybuddy/pkg/telemetry"
	"github.com/sweetpotato0/studybuddy/quality"
	"github.com/sweetpotato0/studybuddy/router"
	"github.com/sweetpotato0/studybuddy/session"
	"github.com/sweetpotato0/studybuddy/tool"
	"github.com/sweetpotato0/studybuddy/topic"
)

const (
	// DefaultMaxToolIterations bounds RESPONDING/TOOL_LOOP round trips.
	DefaultMaxToolIterations = 5
	// DefaultMinVerifyLength is the reply length, in characters, above which
	// rigor topics are verified.
	DefaultMinVerifyLength = 200
	// DefaultCondenseThreshold is the reply length above which normal-style,
	// non-verbose replies are condensed.
	DefaultCondenseThreshold = 1200
)

// DefaultRigorTopics lists the topics verified by default.
var DefaultRigorTopics = []topic.Topic{topic.LangGraph}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	Reply     string          `json:"reply"`
	Topic     topic.Topic     `json:"topic"`
	Style     router.Style    `json:"style"`
	Decision  router.Decision `json:"decision"`
	Path      []string        `json:"path"`
	ToolCalls int             `json:"tool_calls"`
	Verified  bool            `json:"verified"`
	Revised   bool            `json:"revised"`
	Condensed bool            `json:"condensed"`
}

// Orchestrator processes turns. It is safe for concurrent use; turns on the
// same session key are serialized by the session manager.
type Orchestrator struct {
	classifier *router.Classifier
	responder  *agent.Responder
	gate       *quality.Gate
	invoker    *tool.Invoker
	sessions   *session.Manager
	chain      *middleware.Chain
	metrics    *metrics.Metrics
	logger     *slog.Logger

	rigor             topic.Set
	maxToolIterations int
	minVerifyLength   int
	condenseThreshold int

	graph *graph.Graph[*turnState]
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithQualityGate enables verification, revision and condensing.
func WithQualityGate(g *quality.Gate) Option {
	return func(o *Orchestrator) {
		o.gate = g
	}
}

// WithInvoker sets the tool invoker used in TOOL_LOOP.
func WithInvoker(inv *tool.Invoker) Option {
	return func(o *Orchestrator) {
		o.invoker = inv
	}
}

// WithSessions sets the session manager.
func WithSessions(m *session.Manager) Option {
	return func(o *Orchestrator) {
		o.sessions = m
	}
}

// WithMiddleware appends middlewares that wrap every turn.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *Orchestrator) {
		for _, mw := range mws {
			o.chain.Add(mw)
		}
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRigorTopics replaces the set of topics subject to verification.
func WithRigorTopics(ts ...topic.Topic) Option {
	return func(o *Orchestrator) {
		o.rigor = make(topic.Set, len(ts))
		for _, t := range ts {
			o.rigor[t] = struct{}{}
		}
	}
}

// WithMaxToolIterations bounds the tool loop.
func WithMaxToolIterations(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxToolIterations = n
		}
	}
}

// WithMinVerifyLength sets the minimum reply length for verification.
func WithMinVerifyLength(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.minVerifyLength = n
		}
	}
}

// WithCondenseThreshold sets the reply length above which replies are
// condensed. Zero disables condensing.
func WithCondenseThreshold(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.condenseThreshold = n
		}
	}
}

// WithLogger overrides the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator. It panics when the classifier, the responder
// or the session manager is missing.
func New(classifier *router.Classifier, responder *agent.Responder, opts ...Option) *Orchestrator {
	if classifier == nil || responder == nil {
		panic("orchestrator: classifier and responder are required")
	}
	o := &Orchestrator{
		classifier:        classifier,
		responder:         responder,
		chain:             middleware.NewChain(),
		logger:            logging.WithComponent("orchestrator"),
		maxToolIterations: DefaultMaxToolIterations,
		minVerifyLength:   DefaultMinVerifyLength,
		condenseThreshold: DefaultCondenseThreshold,
	}
	WithRigorTopics(DefaultRigorTopics...)(o)
	for _, opt := range opts {
		opt(o)
	}
	if o.sessions == nil {
		panic("orchestrator: a session manager is required")
	}
	o.graph = o.buildGraph()
	return o
}

// ProcessTurn runs one turn for key. Backend and tool failures degrade to
// fallback replies; an error is returned only when the turn could not be
// committed, in which case the session is left unchanged.
func (o *Orchestrator) ProcessTurn(ctx context.Context, key, utterance string) (*TurnResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: session key is required", errors.ErrInvalidInput)
	}

	ctx, span := telemetry.Start(ctx, "turn", attribute.String("session.key", key))
	start := time.Now()

	var result *TurnResult
	mctx := middleware.NewContext(ctx, key, utterance)
	err := o.chain.Execute(mctx, func(mc *middleware.Context) error {
		var err error
		result, err = o.run(mc.Context(), key, mc.Input)
		if err != nil {
			return err
		}
		mc.Response = message.NewMessage(message.RoleAssistant, result.Reply)
		mc.Metadata["topic"] = result.Topic
		mc.Metadata["style"] = result.Style
		mc.Metadata["mode"] = result.Decision.Mode
		return nil
	})
	telemetry.End(span, err)
	if err != nil {
		o.metrics.TurnFailed()
		return nil, err
	}

	span.SetAttributes(
		attribute.String("turn.topic", string(result.Topic)),
		attribute.String("turn.mode", string(result.Decision.Mode)),
		attribute.String("turn.style", string(result.Style)),
	)
	o.metrics.ObserveTurn(string(result.Decision.Mode), string(result.Style), time.Since(start))
	return result, nil
}

// ClearSession drops the context stored for key.
func (o *Orchestrator) ClearSession(ctx context.Context, key string) error {
	return o.sessions.Delete(ctx, key)
}

// Session returns a copy of the context stored for key.
func (o *Orchestrator) Session(ctx context.Context, key string) (*session.Record, error) {
	return o.sessions.Get(ctx, key)
}

func (o *Orchestrator) run(ctx context.Context, key, utterance string) (*TurnResult, error) {
	var result *TurnResult
	err := o.sessions.Update(ctx, key, func(ctx context.Context, rec *session.Record) error {
		st := newTurnState(rec, utterance)

		path, err := o.graph.Execute(ctx, st)
		if err != nil {
			o.logger.Error("turn aborted", "session", key, "path", path, "error", err)
			return err
		}

		o.condense(ctx, st)
		o.commit(rec, st)

		result = &TurnResult{
			Reply:     st.reply.Content,
			Topic:     st.topic,
			Style:     st.style,
			Decision:  st.decision,
			Path:      path,
			ToolCalls: st.toolCalls,
			Verified:  st.verified,
			Revised:   st.revised,
			Condensed: st.condensed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// condense shortens long replies after DONE. It is a boundary transform and
// does not re-enter the state machine.
func (o *Orchestrator) condense(ctx context.Context, st *turnState) {
	if o.gate == nil || o.condenseThreshold == 0 {
		return
	}
	if st.style == router.StyleSimple || st.flags.Verbose {
		return
	}
	if utf8.RuneCountInString(st.reply.Content) <= o.condenseThreshold {
		return
	}
	text, ok := o.gate.Condense(ctx, st.reply.Content)
	if ok {
		st.reply.Content = text
		st.condensed = true
		o.metrics.Condensation()
	}
}

// commit writes the turn into the working copy of the session record. The
// manager persists the copy in one replace once the turn returns.
func (o *Orchestrator) commit(rec *session.Record, st *turnState) {
	rec.Messages = history.Merge(rec.Messages, st.turnMessages(), []*message.Message{st.reply})
	rec.Topic = st.topic
	rec.Style = st.style
	if router.LocksQuestion(st.decision, st.topic) {
		rec.LastQuestion = st.utterance
	}
	rec.LastAnswer = st.reply.Content
	rec.ClarifyAttempts = router.NextAttempts(st.decision.Mode, rec.ClarifyAttempts)
	rec.Turns++
}

// turnState is the mutable state threaded through the graph for one turn.
type turnState struct {
	utterance string
	flags     intent.Flags

	priorTopic   topic.Topic
	lastQuestion string
	attempts     int

	decision router.Decision
	topic    topic.Topic
	style    router.Style

	// log holds the prior history followed by this turn's messages.
	log       *history.History
	turnStart int

	reply      *message.Message
	iterations int
	toolCalls  int
	verdict    quality.Verdict
	verified   bool
	revised    bool
	condensed  bool
}

func newTurnState(rec *session.Record, utterance string) *turnState {
	log := history.New(rec.Messages...)
	start := log.Len()
	log.Append(message.NewMessage(message.RoleUser, utterance))
	return &turnState{
		utterance:    utterance,
		priorTopic:   rec.Topic,
		lastQuestion: rec.LastQuestion,
		attempts:     rec.ClarifyAttempts,
		log:          log,
		turnStart:    start,
	}
}

// turnMessages returns the messages appended during this turn, excluding
// the final reply.
func (st *turnState) turnMessages() []*message.Message {
	return st.log.Messages()[st.turnStart:]
}
