package orchestrator

import (
	"context"
	"unicode/utf8"

	"github.com/sweetpotato0/studybuddy/agent"
	"github.com/sweetpotato0/studybuddy/graph"
	"github.com/sweetpotato0/studybuddy/intent"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/pkg/telemetry"
	"github.com/sweetpotato0/studybuddy/router"
)

// Turn states, in the order they are normally visited.
const (
	StateRouting    = "ROUTING"
	StateResponding = "RESPONDING"
	StateToolLoop   = "TOOL_LOOP"
	StateVerifying  = "VERIFYING"
	StateRevising   = "REVISING"
	StateDone       = "DONE"
)

func (o *Orchestrator) buildGraph() *graph.Graph[*turnState] {
	return graph.NewBuilder[*turnState]().
		AddNode(StateRouting, graph.NodeTypeStart, o.traced(StateRouting, o.route)).
		AddConditionNode(StateResponding, o.traced(StateResponding, o.respond), o.afterResponse, map[string]string{
			StateToolLoop:  StateToolLoop,
			StateVerifying: StateVerifying,
			StateDone:      StateDone,
		}).
		AddNode(StateToolLoop, graph.NodeTypeTask, o.traced(StateToolLoop, o.runTools)).
		AddConditionNode(StateVerifying, o.traced(StateVerifying, o.verify), o.afterVerify, map[string]string{
			StateRevising: StateRevising,
			StateDone:     StateDone,
		}).
		AddNode(StateRevising, graph.NodeTypeTask, o.traced(StateRevising, o.revise)).
		AddNode(StateDone, graph.NodeTypeEnd, nil).
		AddEdge(StateRouting, StateResponding).
		AddEdge(StateToolLoop, StateResponding).
		AddEdge(StateRevising, StateDone).
		SetStart(StateRouting).
		SetMaxVisits(o.maxToolIterations + 2).
		OnTransition(func(ctx context.Context, from, to string) {
			o.logger.DebugContext(ctx, "state transition", "from", from, "to", to)
		}).
		Build()
}

// traced runs fn inside a child span named after the state.
func (o *Orchestrator) traced(name string, fn graph.NodeFunc[*turnState]) graph.NodeFunc[*turnState] {
	return func(ctx context.Context, st *turnState) error {
		ctx, span := telemetry.Start(ctx, "state."+name)
		err := fn(ctx, st)
		telemetry.End(span, err)
		return err
	}
}

func (o *Orchestrator) route(ctx context.Context, st *turnState) error {
	st.flags = intent.Detect(st.utterance)
	st.decision = o.classifier.Classify(ctx, router.Input{
		Utterance:    st.utterance,
		PriorTopic:   st.priorTopic,
		LastQuestion: st.lastQuestion,
		Attempts:     st.attempts,
		Flags:        st.flags,
	})
	if st.decision.Source == router.SourceFallback {
		o.metrics.ClassifierFallback()
	}
	st.topic = router.ResolveTopic(st.decision, st.priorTopic)
	st.style = router.ResolveStyle(st.decision, st.flags.Simplify)

	o.logger.Debug("turn routed",
		"mode", st.decision.Mode,
		"topic", st.topic,
		"style", st.style,
		"confidence", st.decision.Confidence,
		"source", st.decision.Source,
		"gated", st.decision.Gated,
		"committed", st.decision.Committed)
	return nil
}

func (o *Orchestrator) respond(ctx context.Context, st *turnState) error {
	reply, err := o.responder.Respond(ctx, &agent.Request{
		Topic:        st.topic,
		Style:        st.style,
		Decision:     st.decision,
		Flags:        st.flags,
		LastQuestion: st.lastQuestion,
		Messages:     st.log.Messages(),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		o.logger.Warn("generation failed, using fallback reply", "topic", st.topic, "error", err)
		st.reply = message.NewMessage(message.RoleAssistant, agent.FallbackReply)
		return nil
	}

	if reply.HasToolCalls() && (o.invoker == nil || st.iterations >= o.maxToolIterations) {
		o.logger.Warn("tool loop limit reached, finishing with the current reply",
			"iterations", st.iterations, "pending_calls", len(reply.ToolCalls))
		reply.ToolCalls = nil
	}
	if !reply.HasToolCalls() && reply.Content == "" {
		reply.Content = agent.FallbackReply
	}
	st.reply = reply
	return nil
}

func (o *Orchestrator) afterResponse(_ context.Context, st *turnState) (string, error) {
	switch {
	case st.reply.HasToolCalls():
		return StateToolLoop, nil
	case o.needsVerification(st):
		return StateVerifying, nil
	default:
		o.metrics.ToolIterations(st.iterations)
		return StateDone, nil
	}
}

func (o *Orchestrator) needsVerification(st *turnState) bool {
	return o.gate != nil &&
		o.rigor.Has(st.topic) &&
		st.style != router.StyleSimple &&
		utf8.RuneCountInString(st.reply.Content) > o.minVerifyLength
}

func (o *Orchestrator) runTools(ctx context.Context, st *turnState) error {
	calls := st.reply.ToolCalls
	results := o.invoker.Invoke(ctx, calls)

	st.log.Append(st.reply)
	st.log.Append(results...)
	st.iterations++
	st.toolCalls += len(calls)
	st.reply = nil
	return nil
}

func (o *Orchestrator) verify(ctx context.Context, st *turnState) error {
	o.metrics.ToolIterations(st.iterations)
	st.verdict = o.gate.Verify(ctx, st.topic, st.utterance, st.reply.Content)
	st.verified = true

	outcome := "pass"
	switch {
	case st.verdict.Advisory:
		outcome = "advisory"
	case !st.verdict.Pass:
		outcome = "fail"
	}
	o.metrics.Verification(outcome)
	return nil
}

func (o *Orchestrator) afterVerify(_ context.Context, st *turnState) (string, error) {
	if st.verdict.Pass {
		return StateDone, nil
	}
	return StateRevising, nil
}

func (o *Orchestrator) revise(ctx context.Context, st *turnState) error {
	text, ok := o.gate.Revise(ctx, st.topic, st.utterance, st.reply.Content, st.verdict.Feedback)
	if !ok {
		return nil
	}
	st.reply = message.NewMessage(message.RoleAssistant, text)
	st.revised = true
	o.metrics.Revision()
	return nil
}
