package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sweetpotato0/studybuddy/intent"
	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/router"
	"github.com/sweetpotato0/studybuddy/tool"
	"github.com/sweetpotato0/studybuddy/topic"
)

func noteTool() *tool.Tool {
	return &tool.Tool{
		Name:        "save_note",
		Description: "Save a study note",
		Parameters: []tool.Parameter{
			{Name: "content", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "saved", nil
		},
	}
}

func indexOf(t *testing.T, s, part string) int {
	t.Helper()
	i := strings.Index(s, part)
	if i < 0 {
		t.Fatalf("instructions missing %q:\n%s", part, s)
	}
	return i
}

func TestInstructionOrder(t *testing.T) {
	registry := tool.NewRegistry()
	if err := registry.Register(noteTool()); err != nil {
		t.Fatal(err)
	}
	r := New(nil, WithTools(registry))

	got := r.Instructions(&Request{
		Topic:    topic.Python,
		Style:    router.StyleNormal,
		Decision: router.Decision{Mode: router.ModeTeach},
		Flags:    intent.Flags{Verbose: true, Code: true},
	})

	order := []string{
		brevityRules,
		verboseOverride,
		codeOverride,
		topic.Expertise(topic.Python),
		"- save_note: Save a study note",
		modeDirectives[router.ModeTeach],
	}
	prev := -1
	for _, part := range order {
		i := indexOf(t, got, strings.TrimSpace(part))
		if i <= prev {
			t.Errorf("%q is out of order", part[:20])
		}
		prev = i
	}
	if !strings.Contains(got, "The current subject is: python") {
		t.Error("tool advisory does not name the subject")
	}
}

func TestSimpleStyleReplacesRules(t *testing.T) {
	r := New(nil)
	got := r.Instructions(&Request{
		Topic:        topic.LangGraph,
		Style:        router.StyleSimple,
		Decision:     router.Decision{Mode: router.ModeSimplify},
		Flags:        intent.Flags{Simplify: true, Verbose: true, Code: true},
		LastQuestion: "what is the main concept of langgraph",
	})

	if strings.Contains(got, brevityRules) || strings.Contains(got, verboseOverride) || strings.Contains(got, codeOverride) {
		t.Errorf("simple style kept normal overrides:\n%s", got)
	}
	indexOf(t, got, simpleTemplate)
	indexOf(t, got, `"what is the main concept of langgraph"`)
}

func TestSimpleStyleWithoutSimplifyIntentSkipsReferent(t *testing.T) {
	r := New(nil)
	got := r.Instructions(&Request{
		Topic:        topic.LangGraph,
		Style:        router.StyleSimple,
		Decision:     router.Decision{Mode: router.ModeSimplify},
		LastQuestion: "what is a node",
	})
	if strings.Contains(got, "what is a node") {
		t.Error("referent restated without a simplify request")
	}
}

func TestClarifyDirectiveListsMissingInfo(t *testing.T) {
	r := New(nil)
	got := r.Instructions(&Request{
		Topic:    topic.General,
		Style:    router.StyleNormal,
		Decision: router.Decision{Mode: router.ModeClarify, MissingInfo: []string{"language", "error text"}},
	})
	indexOf(t, got, modeDirectives[router.ModeClarify])
	indexOf(t, got, "Information still missing: language; error text.")
}

func TestRespondBindsToolsAndWindow(t *testing.T) {
	registry := tool.NewRegistry()
	_ = registry.Register(noteTool())

	var seen *llm.Request
	client := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		seen = req
		return &llm.Response{Message: message.NewToolCallMessage("", []message.ToolCall{
			{ID: "call_1", Name: "save_note", Args: map[string]any{"content": "x"}},
		})}, nil
	})

	r := New(client, WithTools(registry), WithTokenBudget(30, nil))
	msgs := []*message.Message{
		message.NewMessage(message.RoleUser, strings.Repeat("old question ", 40)),
		message.NewMessage(message.RoleAssistant, strings.Repeat("old answer ", 40)),
		message.NewMessage(message.RoleUser, "remember this"),
	}
	reply, err := r.Respond(context.Background(), &Request{
		Topic:    topic.Python,
		Decision: router.Decision{Mode: router.ModeAnswer},
		Messages: msgs,
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !reply.HasToolCalls() {
		t.Error("tool calls were dropped")
	}
	if len(seen.Tools) != 1 || seen.Tools[0].Name != "save_note" {
		t.Errorf("bound tools = %+v", seen.Tools)
	}
	if len(seen.Messages) != 1 || seen.Messages[0].Content != "remember this" {
		t.Errorf("history window = %d messages, want only the newest", len(seen.Messages))
	}
}

func TestRespondErrors(t *testing.T) {
	failing := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return nil, errors.New("rate limited")
	})
	if _, err := New(failing).Respond(context.Background(), &Request{}); err == nil {
		t.Error("expected backend error")
	}

	empty := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{}, nil
	})
	if _, err := New(empty).Respond(context.Background(), &Request{}); !errors.Is(err, llm.ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}
