package mcp

import (
	"encoding/json"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestNormalizeContent(t *testing.T) {
	content := []sdkmcp.Content{
		&sdkmcp.TextContent{Text: "hello"},
		&sdkmcp.ResourceLink{URI: "file://foo", Name: "foo.txt"},
	}

	got := normalizeContent(content)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != "hello" {
		t.Fatalf("expected first line to be 'hello', got %q", lines[0])
	}
	if !strings.Contains(lines[1], "\"resource_link\"") {
		t.Fatalf("expected JSON output to include resource link type: %q", lines[1])
	}
}

func TestParametersFromSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "search query",
			},
			"tags": map[string]any{
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"query"},
	}

	params := parametersFromSchema(schema)
	if len(params) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(params))
	}
	if params[0].Name != "query" || params[1].Name != "tags" {
		t.Fatalf("expected parameters sorted alphabetically, got %s, %s", params[0].Name, params[1].Name)
	}
	if !params[0].Required {
		t.Fatal("expected 'query' to be required")
	}
	if params[1].Type != "array" || params[1].Items != "string" {
		t.Fatalf("expected inferred string array, got %s of %s", params[1].Type, params[1].Items)
	}
}

func TestParametersFromNonObjectSchema(t *testing.T) {
	if params := parametersFromSchema(map[string]any{"type": "string"}); params != nil {
		t.Fatalf("expected no parameters, got %v", params)
	}
}

func TestToMap(t *testing.T) {
	raw := json.RawMessage(`{"type":"object"}`)
	if m := toMap(raw); m["type"] != "object" {
		t.Fatalf("raw message not decoded: %v", m)
	}
	type schema struct {
		Type string `json:"type"`
	}
	if m := toMap(&schema{Type: "object"}); m["type"] != "object" {
		t.Fatalf("struct not decoded: %v", m)
	}
	if toMap(nil) != nil {
		t.Fatal("expected nil for nil schema")
	}
}

func TestLocalName(t *testing.T) {
	if got := localName("", "fetch"); got != "fetch" {
		t.Fatalf("got %q", got)
	}
	if got := localName("docs", "fetch"); got != "docs_fetch" {
		t.Fatalf("got %q", got)
	}
}
