package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/sweetpotato0/studybuddy/agent"
	"github.com/sweetpotato0/studybuddy/contrib/session/inmemory"
	sberrors "github.com/sweetpotato0/studybuddy/errors"
	"github.com/sweetpotato0/studybuddy/history"
	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/middleware/validator"
	"github.com/sweetpotato0/studybuddy/quality"
	"github.com/sweetpotato0/studybuddy/router"
	"github.com/sweetpotato0/studybuddy/session"
	"github.com/sweetpotato0/studybuddy/tool"
	"github.com/sweetpotato0/studybuddy/topic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend answers each kind of completion call from its own script.
type fakeBackend struct {
	mu sync.Mutex

	classify func(n int) string
	respond  func(n int, req *llm.Request) (*message.Message, error)
	verify   string
	revise   string
	condense string

	calls         map[string]int
	responderReqs []*llm.Request
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		classify: func(int) string { return `{"mode":"answer","topic":"python","confidence":0.9}` },
		respond: func(int, *llm.Request) (*message.Message, error) {
			return message.NewMessage(message.RoleAssistant, "A short answer."), nil
		},
		verify:   `{"pass": true}`,
		revise:   "revised answer",
		condense: "condensed answer",
		calls:    make(map[string]int),
	}
}

func kindOf(req *llm.Request) string {
	switch {
	case strings.HasPrefix(req.Instructions, "You route messages"):
		return "classify"
	case strings.HasPrefix(req.Instructions, "You review answers"):
		return "verify"
	case strings.HasPrefix(req.Instructions, "Rewrite the answer"):
		return "revise"
	case strings.HasPrefix(req.Instructions, "Shorten this answer"):
		return "condense"
	default:
		return "respond"
	}
}

func (f *fakeBackend) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	kind := kindOf(req)
	n := f.calls[kind]
	f.calls[kind]++
	if kind == "respond" {
		f.responderReqs = append(f.responderReqs, req)
	}
	f.mu.Unlock()

	text := ""
	switch kind {
	case "classify":
		text = f.classify(n)
	case "verify":
		text = f.verify
	case "revise":
		text = f.revise
	case "condense":
		text = f.condense
	default:
		msg, err := f.respond(n, req)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Message: msg}, nil
	}
	return &llm.Response{Message: message.NewMessage(message.RoleAssistant, text)}, nil
}

func (f *fakeBackend) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

type fixture struct {
	backend  *fakeBackend
	sessions *session.Manager
	orch     *Orchestrator
}

func newFixture(t *testing.T, backend *fakeBackend, registry *tool.Registry, opts ...Option) *fixture {
	t.Helper()
	sessions := session.NewManager(session.WithStore(inmemory.NewInMemoryStore(0)))

	var respOpts []agent.Option
	base := []Option{
		WithSessions(sessions),
		WithQualityGate(quality.NewGate(backend)),
	}
	if registry != nil {
		respOpts = append(respOpts, agent.WithTools(registry))
		base = append(base, WithInvoker(tool.NewInvoker(registry, tool.WithConcurrency(2))))
	}

	orch := New(router.NewClassifier(backend), agent.New(backend, respOpts...), append(base, opts...)...)
	return &fixture{backend: backend, sessions: sessions, orch: orch}
}

func (fx *fixture) turn(t *testing.T, utterance string) *TurnResult {
	t.Helper()
	res, err := fx.orch.ProcessTurn(context.Background(), "s1", utterance)
	if err != nil {
		t.Fatalf("ProcessTurn(%q) error = %v", utterance, err)
	}
	return res
}

func (fx *fixture) record(t *testing.T) *session.Record {
	t.Helper()
	rec, err := fx.sessions.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return rec
}

func TestSimplifyKeepsTopicAndLatchesStyle(t *testing.T) {
	backend := newFakeBackend()
	backend.classify = func(int) string {
		return `{"mode":"teach","topic":"python","confidence":0.92}`
	}
	fx := newFixture(t, backend, nil)

	first := fx.turn(t, "what is the main concept of python")
	if first.Topic != topic.Python || first.Style != router.StyleNormal {
		t.Fatalf("turn 1 = %s/%s, want python/normal", first.Topic, first.Style)
	}

	second := fx.turn(t, "I don't understand")
	if second.Topic != topic.Python || second.Style != router.StyleSimple {
		t.Fatalf("turn 2 = %s/%s, want python/simple", second.Topic, second.Style)
	}
	if second.Decision.Mode != router.ModeSimplify {
		t.Fatalf("turn 2 mode = %s", second.Decision.Mode)
	}
	if rec := fx.record(t); rec.ClarifyAttempts != 0 {
		t.Fatalf("attempts after simplify = %d", rec.ClarifyAttempts)
	}

	third := fx.turn(t, "tell me in order")
	if third.Topic != topic.Python || third.Style != router.StyleSimple {
		t.Fatalf("turn 3 = %s/%s, want python/simple", third.Topic, third.Style)
	}

	if n := backend.count("classify"); n != 1 {
		t.Fatalf("classifier calls = %d, want 1 (simplify turns take the fast path)", n)
	}

	backend.mu.Lock()
	instructions := backend.responderReqs[1].Instructions
	backend.mu.Unlock()
	if !strings.Contains(instructions, `"what is the main concept of python"`) {
		t.Fatalf("simplify turn should restate the last question, got:\n%s", instructions)
	}

	rec := fx.record(t)
	if rec.LastQuestion != "what is the main concept of python" {
		t.Fatalf("last question = %q", rec.LastQuestion)
	}
	if rec.Turns != 3 || len(rec.Messages) != 6 {
		t.Fatalf("turns=%d messages=%d, want 3 and 6", rec.Turns, len(rec.Messages))
	}
}

func TestClarificationCapCommits(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantCommitted bool
	}{
		{name: "low confidence answer", raw: `{"mode":"answer","topic":"unknown","confidence":0.3}`},
		{name: "explicit clarify", raw: `{"mode":"ask_clarify","topic":"unknown","confidence":0.2}`, wantCommitted: true},
		{name: "unparseable", raw: `I am not sure what you mean`, wantCommitted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.classify = func(int) string { return tt.raw }
			fx := newFixture(t, backend, nil)

			var modes []router.Mode
			var attempts []int
			var last *TurnResult
			for i := 0; i < 3; i++ {
				last = fx.turn(t, "how does it work?")
				modes = append(modes, last.Decision.Mode)
				attempts = append(attempts, fx.record(t).ClarifyAttempts)
			}

			if modes[0] != router.ModeClarify || modes[1] != router.ModeClarify {
				t.Fatalf("first two modes = %v, want clarify", modes[:2])
			}
			if modes[2] == router.ModeClarify {
				t.Fatalf("third turn must commit, got %v", modes)
			}
			if !reflect.DeepEqual(attempts, []int{1, 2, 0}) {
				t.Fatalf("attempts = %v, want [1 2 0]", attempts)
			}
			if last.Decision.Committed != tt.wantCommitted {
				t.Fatalf("committed = %v, want %v", last.Decision.Committed, tt.wantCommitted)
			}
			if last.Topic != topic.General {
				t.Fatalf("committed topic = %s, want general", last.Topic)
			}
		})
	}
}

func TestRigorTopicRevisedOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.classify = func(int) string { return `{"mode":"answer","topic":"langgraph","confidence":0.9}` }
	backend.respond = func(int, *llm.Request) (*message.Message, error) {
		return message.NewMessage(message.RoleAssistant, strings.Repeat("It manages agents in a flexible way. ", 10)), nil
	}
	backend.verify = `{"pass": false, "feedback": "Name StateGraph and reducers."}`
	backend.revise = "LangGraph builds a StateGraph whose reducers merge node updates."
	fx := newFixture(t, backend, nil)

	res := fx.turn(t, "how does langgraph manage state?")

	want := []string{StateRouting, StateResponding, StateVerifying, StateRevising, StateDone}
	if !reflect.DeepEqual(res.Path, want) {
		t.Fatalf("path = %v, want %v", res.Path, want)
	}
	if !res.Verified || !res.Revised {
		t.Fatalf("verified=%v revised=%v", res.Verified, res.Revised)
	}
	if res.Reply != backend.revise {
		t.Fatalf("reply = %q, want the revision", res.Reply)
	}
	if backend.count("verify") != 1 || backend.count("revise") != 1 {
		t.Fatalf("verify=%d revise=%d, want 1 each", backend.count("verify"), backend.count("revise"))
	}
	if fx.record(t).LastAnswer != backend.revise {
		t.Fatal("session should hold the revised answer")
	}
}

func TestVerificationSkipped(t *testing.T) {
	long := strings.Repeat("x", 300)
	tests := []struct {
		name      string
		raw       string
		reply     string
		utterance string
	}{
		{name: "non rigor topic", raw: `{"mode":"answer","topic":"python","confidence":0.9}`, reply: long, utterance: "explain generators"},
		{name: "short reply", raw: `{"mode":"answer","topic":"langgraph","confidence":0.9}`, reply: "Short.", utterance: "what is a node"},
		{name: "clarification", raw: `{"mode":"answer","topic":"langgraph","confidence":0.2}`, reply: "Which part of LangGraph?", utterance: "graph thing?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.classify = func(int) string { return tt.raw }
			backend.respond = func(int, *llm.Request) (*message.Message, error) {
				return message.NewMessage(message.RoleAssistant, tt.reply), nil
			}
			fx := newFixture(t, backend, nil)

			res := fx.turn(t, tt.utterance)
			if res.Verified || backend.count("verify") != 0 {
				t.Fatalf("verification should be skipped, path=%v", res.Path)
			}
			if res.Path[len(res.Path)-1] != StateDone {
				t.Fatalf("path should end in DONE: %v", res.Path)
			}
		})
	}
}

func TestVerificationSkippedForSimpleStyle(t *testing.T) {
	backend := newFakeBackend()
	backend.classify = func(int) string { return `{"mode":"teach","topic":"langgraph","confidence":0.9}` }
	backend.respond = func(int, *llm.Request) (*message.Message, error) {
		return message.NewMessage(message.RoleAssistant, strings.Repeat("simple words ", 40)), nil
	}
	fx := newFixture(t, backend, nil)

	fx.turn(t, "what is langgraph")
	res := fx.turn(t, "break it down for a beginner")
	if res.Style != router.StyleSimple || res.Verified {
		t.Fatalf("style=%s verified=%v", res.Style, res.Verified)
	}
}

func newNotesRegistry(t *testing.T, calls *int) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	err := reg.Register(&tool.Tool{
		Name:        "get_notes",
		Description: "Retrieve all notes for a subject.",
		Parameters:  []tool.Parameter{{Name: "subject", Type: "string", Required: true}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			*calls++
			return fmt.Sprintf("Notes for %v (1 total)", args["subject"]), nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return reg
}

func TestToolLoop(t *testing.T) {
	backend := newFakeBackend()
	backend.respond = func(n int, req *llm.Request) (*message.Message, error) {
		if n == 0 {
			return message.NewToolCallMessage("", []message.ToolCall{
				{ID: "call-1", Name: "get_notes", Args: map[string]any{"subject": "python"}},
			}), nil
		}
		last := req.Messages[len(req.Messages)-1]
		return message.NewMessage(message.RoleAssistant, "You have one note. ("+last.Content+")"), nil
	}
	var toolCalls int
	fx := newFixture(t, backend, newNotesRegistry(t, &toolCalls))

	res := fx.turn(t, "show my python notes")

	want := []string{StateRouting, StateResponding, StateToolLoop, StateResponding, StateDone}
	if !reflect.DeepEqual(res.Path, want) {
		t.Fatalf("path = %v, want %v", res.Path, want)
	}
	if toolCalls != 1 || res.ToolCalls != 1 {
		t.Fatalf("tool executions=%d reported=%d", toolCalls, res.ToolCalls)
	}
	if !strings.Contains(res.Reply, "Notes for python") {
		t.Fatalf("reply should use the tool result: %q", res.Reply)
	}

	rec := fx.record(t)
	roles := make([]message.Role, len(rec.Messages))
	for i, m := range rec.Messages {
		roles[i] = m.Role
	}
	wantRoles := []message.Role{message.RoleUser, message.RoleAssistant, message.RoleTool, message.RoleAssistant}
	if !reflect.DeepEqual(roles, wantRoles) {
		t.Fatalf("history roles = %v, want %v", roles, wantRoles)
	}
	if rec.Messages[2].ToolID != "call-1" {
		t.Fatalf("tool result not correlated: %q", rec.Messages[2].ToolID)
	}
}

func TestToolLoopLargeResultKeepsTurnContext(t *testing.T) {
	backend := newFakeBackend()
	backend.respond = func(n int, req *llm.Request) (*message.Message, error) {
		if n == 0 {
			return message.NewToolCallMessage("", []message.ToolCall{
				{ID: "call-1", Name: "get_notes", Args: map[string]any{"subject": "python"}},
			}), nil
		}
		return message.NewMessage(message.RoleAssistant, "Here is a summary of your notes."), nil
	}
	reg := tool.NewRegistry()
	err := reg.Register(&tool.Tool{
		Name:       "get_notes",
		Parameters: []tool.Parameter{{Name: "subject", Type: "string", Required: true}},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return strings.Repeat("a long python note ", 1100), nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	sessions := session.NewManager(session.WithStore(inmemory.NewInMemoryStore(0)))
	responder := agent.New(backend, agent.WithTools(reg), agent.WithTokenBudget(3000, history.ApproxCounter{}))
	orch := New(router.NewClassifier(backend), responder,
		WithSessions(sessions),
		WithInvoker(tool.NewInvoker(reg)),
	)

	res, err := orch.ProcessTurn(context.Background(), "s1", "show my python notes")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.Reply != "Here is a summary of your notes." {
		t.Fatalf("reply = %q", res.Reply)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.responderReqs) != 2 {
		t.Fatalf("generation calls = %d, want 2", len(backend.responderReqs))
	}
	window := backend.responderReqs[1].Messages
	roles := make([]message.Role, len(window))
	for i, m := range window {
		roles[i] = m.Role
	}
	want := []message.Role{message.RoleUser, message.RoleAssistant, message.RoleTool}
	if !reflect.DeepEqual(roles, want) {
		t.Fatalf("second generation window roles = %v, want %v", roles, want)
	}
	if window[0].Content != "show my python notes" {
		t.Fatalf("window lost the question: %q", window[0].Content)
	}
	if !strings.HasSuffix(window[2].Content, history.TruncatedMarker) {
		t.Fatal("oversized tool result should be shortened")
	}
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStateTransitionsAreLogged(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fx := newFixture(t, newFakeBackend(), nil, WithLogger(logger))

	fx.turn(t, "what is a decorator?")

	logs := out.String()
	for _, want := range []string{
		`msg="state transition" from=ROUTING to=RESPONDING`,
		`msg="state transition" from=RESPONDING to=DONE`,
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
}

func TestToolLoopCap(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantReply string
	}{
		{name: "keeps partial reply", content: "Still looking.", wantReply: "Still looking."},
		{name: "falls back when empty", content: "", wantReply: agent.FallbackReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.respond = func(n int, _ *llm.Request) (*message.Message, error) {
				return message.NewToolCallMessage(tt.content, []message.ToolCall{
					{ID: fmt.Sprintf("call-%d", n), Name: "get_notes", Args: map[string]any{"subject": "python"}},
				}), nil
			}
			var toolCalls int
			fx := newFixture(t, backend, newNotesRegistry(t, &toolCalls), WithMaxToolIterations(2))

			res := fx.turn(t, "show my notes")
			if toolCalls != 2 {
				t.Fatalf("tool executions = %d, want 2", toolCalls)
			}
			want := []string{StateRouting, StateResponding, StateToolLoop, StateResponding, StateToolLoop, StateResponding, StateDone}
			if !reflect.DeepEqual(res.Path, want) {
				t.Fatalf("path = %v, want %v", res.Path, want)
			}
			if res.Reply != tt.wantReply {
				t.Fatalf("reply = %q, want %q", res.Reply, tt.wantReply)
			}
		})
	}
}

func TestGenerationFailureFallsBack(t *testing.T) {
	backend := newFakeBackend()
	backend.respond = func(int, *llm.Request) (*message.Message, error) {
		return nil, errors.New("backend down")
	}
	fx := newFixture(t, backend, nil)

	res := fx.turn(t, "explain list comprehensions")
	if res.Reply != agent.FallbackReply {
		t.Fatalf("reply = %q", res.Reply)
	}
	if fx.record(t).Turns != 1 {
		t.Fatal("a fallback turn should still be committed")
	}
}

func TestCondense(t *testing.T) {
	long := strings.Repeat("Generators yield values lazily. ", 50)
	tests := []struct {
		name          string
		utterance     string
		wantCondensed bool
	}{
		{name: "long reply condensed", utterance: "what are generators", wantCondensed: true},
		{name: "verbose request kept", utterance: "explain generators in detail", wantCondensed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.respond = func(int, *llm.Request) (*message.Message, error) {
				return message.NewMessage(message.RoleAssistant, long), nil
			}
			fx := newFixture(t, backend, nil)

			res := fx.turn(t, tt.utterance)
			if res.Condensed != tt.wantCondensed {
				t.Fatalf("condensed = %v, want %v", res.Condensed, tt.wantCondensed)
			}
			if tt.wantCondensed {
				if res.Reply != backend.condense {
					t.Fatalf("reply = %q", res.Reply)
				}
				if fx.record(t).LastAnswer != backend.condense {
					t.Fatal("session should hold the condensed reply")
				}
			}
			if res.Path[len(res.Path)-1] != StateDone {
				t.Fatalf("condense must not alter the state path: %v", res.Path)
			}
		})
	}
}

func TestCancelledTurnLeavesSessionUnchanged(t *testing.T) {
	fx := newFixture(t, newFakeBackend(), nil)
	fx.turn(t, "what is a decorator")
	before := fx.record(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fx.orch.ProcessTurn(ctx, "s1", "and a closure?"); err == nil {
		t.Fatal("expected an error for a cancelled turn")
	}

	after := fx.record(t)
	if after.Turns != before.Turns || len(after.Messages) != len(before.Messages) {
		t.Fatalf("session changed: turns %d -> %d", before.Turns, after.Turns)
	}
}

func TestMiddlewareRejectsInput(t *testing.T) {
	fx := newFixture(t, newFakeBackend(), nil, WithMiddleware(validator.NewInputValidator()))

	_, err := fx.orch.ProcessTurn(context.Background(), "s1", "   ")
	if !sberrors.Is(err, sberrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if n, _ := fx.sessions.Count(context.Background()); n != 0 {
		t.Fatal("rejected turn should not create a session")
	}
}

func TestEmptySessionKey(t *testing.T) {
	fx := newFixture(t, newFakeBackend(), nil)
	if _, err := fx.orch.ProcessTurn(context.Background(), " ", "hi"); !sberrors.Is(err, sberrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConcurrentTurnsSameSession(t *testing.T) {
	fx := newFixture(t, newFakeBackend(), nil)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := fx.orch.ProcessTurn(context.Background(), "s1", fmt.Sprintf("question %d", i)); err != nil {
				t.Errorf("turn %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	rec := fx.record(t)
	if rec.Turns != n || len(rec.Messages) != 2*n {
		t.Fatalf("turns=%d messages=%d, want %d and %d", rec.Turns, len(rec.Messages), n, 2*n)
	}
}

func TestClearSession(t *testing.T) {
	fx := newFixture(t, newFakeBackend(), nil)
	fx.turn(t, "what is python")

	if err := fx.orch.ClearSession(context.Background(), "s1"); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	rec, err := fx.orch.Session(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if rec.Turns != 0 || rec.Topic != topic.None {
		t.Fatalf("session not cleared: %+v", rec)
	}
}
