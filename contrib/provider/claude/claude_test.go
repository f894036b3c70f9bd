package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/message"
)

func TestConvertMessagesMergesToolResults(t *testing.T) {
	call := message.NewToolCallMessage("", []message.ToolCall{
		{ID: "a", Name: "get_notes", Args: map[string]any{"subject": "python"}},
		{ID: "b", Name: "web_search", Args: map[string]any{"query": "x"}},
	})
	system, msgs := convertMessages(&llm.Request{
		Instructions: "be brief",
		Messages: []*message.Message{
			message.NewMessage(message.RoleUser, "hi"),
			call,
			message.NewToolResponseMessage("a", "notes"),
			message.NewToolResponseMessage("b", "results"),
		},
	})

	if system != "be brief" {
		t.Fatalf("system = %q", system)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected user, assistant, user; got %d messages", len(msgs))
	}
	if msgs[1].Role != anthropic.MessageParamRoleAssistant || len(msgs[1].Content) != 2 {
		t.Fatalf("assistant turn should carry both tool uses: %+v", msgs[1])
	}
	if msgs[2].Role != anthropic.MessageParamRoleUser || len(msgs[2].Content) != 2 {
		t.Fatalf("tool results should merge into one user turn: %+v", msgs[2])
	}
}

func TestGenerateParsesToolUse(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "tu_1", "name": "get_notes", "input": {"subject": "python"}}
			],
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	p := New(&Config{APIKey: "test", BaseURL: srv.URL}, option.WithMaxRetries(0))
	resp, err := p.Generate(context.Background(), &llm.Request{
		Instructions: "rules",
		Messages:     []*message.Message{message.NewMessage(message.RoleUser, "notes?")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Message.Content != "Let me check." {
		t.Fatalf("content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Args["subject"] != "python" {
		t.Fatalf("tool calls = %+v", resp.Message.ToolCalls)
	}
	if _, ok := body["system"]; !ok {
		t.Fatal("expected system prompt in request")
	}
}
