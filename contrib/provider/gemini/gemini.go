// Package gemini adapts Google's Gemini API to llm.Client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/tool"
	"google.golang.org/api/option"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-1.5-flash"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       DefaultModel,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Provider implements llm.Client for Gemini.
type Provider struct {
	config *Config
	client *genai.Client
}

var _ llm.Client = (*Provider)(nil)

// New creates a Gemini provider. Close releases the underlying client.
func New(ctx context.Context, config *Config, opts ...option.ClientOption) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, errors.New("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(config.APIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements llm.Client.
func (p *Provider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, errors.New("generate request cannot be nil")
	}

	model := p.client.GenerativeModel(p.config.Model)
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(p.config.MaxTokens))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, schema := range req.Tools {
			decls = append(decls, functionDeclaration(schema))
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	system, history := convertMessages(req)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(history) == 0 {
		return nil, errors.New("gemini: request has no messages")
	}

	chat := model.StartChat()
	last := history[len(history)-1]
	chat.History = history[:len(history)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	return &llm.Response{Message: parseResponse(resp)}, nil
}

func parseResponse(resp *genai.GenerateContentResponse) *message.Message {
	var (
		text  strings.Builder
		calls []message.ToolCall
	)
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				text.WriteString(string(v))
			case genai.FunctionCall:
				calls = append(calls, message.ToolCall{ID: uuid.NewString(), Name: v.Name, Args: v.Args})
			case *genai.FunctionCall:
				calls = append(calls, message.ToolCall{ID: uuid.NewString(), Name: v.Name, Args: v.Args})
			}
		}
	}
	reply := message.NewMessage(message.RoleAssistant, text.String())
	reply.ToolCalls = calls
	return reply
}

// convertMessages maps the conversation to Gemini contents. Tool results are
// matched back to the call name, since Gemini identifies responses by name.
func convertMessages(req *llm.Request) (string, []*genai.Content) {
	var system []string
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}

	callNames := make(map[string]string)
	var out []*genai.Content
	add := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, msg.Content)
		case message.RoleUser:
			add("user", genai.Text(msg.Content))
		case message.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			add("model", parts...)
		case message.RoleTool:
			add("user", genai.FunctionResponse{
				Name:     callNames[msg.ToolID],
				Response: map[string]any{"result": msg.Content},
			})
		}
	}
	return strings.Join(system, "\n"), out
}

func functionDeclaration(schema tool.Schema) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        schema.Name,
		Description: schema.Description,
		Parameters:  convertSchema(schema.Parameters),
	}
}

// convertSchema translates a JSON-schema object into genai.Schema.
func convertSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{Description: stringValue(m["description"])}
	switch stringValue(m["type"]) {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}
	if props, ok := m["properties"].(map[string]any); ok && len(props) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if prop, ok := raw.(map[string]any); ok {
				s.Properties[name] = convertSchema(prop)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = convertSchema(items)
	}
	s.Required = stringSlice(m["required"])
	s.Enum = stringSlice(m["enum"])
	return s
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
