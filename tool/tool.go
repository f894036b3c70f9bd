package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sweetpotato0/studybuddy/pkg/logging"
)

// Handler executes a tool with decoded arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Parameter defines a tool parameter
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean, object, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	// Items is the element type when Type is "array".
	Items string `json:"items,omitempty"`
}

// Tool represents a callable tool/function
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	// InputSchema, when set, is used verbatim instead of Parameters. Remote MCP
	// tools carry their own schema.
	InputSchema map[string]any `json:"input_schema,omitempty"`
	Handler     Handler        `json:"-"`
}

// Schema is the provider-neutral declaration bound to a completion backend.
type Schema struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// Required returns the names listed under "required" in the schema.
func (s Schema) Required() []string {
	switch v := s.Parameters["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if name, ok := item.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// Properties returns the "properties" object of the schema.
func (s Schema) Properties() map[string]any {
	props, _ := s.Parameters["properties"].(map[string]any)
	return props
}

// Execute runs the tool with given arguments
func (t *Tool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.Handler == nil {
		return "", fmt.Errorf("tool %s has no handler", t.Name)
	}
	if err := t.ValidateArgs(args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	return t.Handler(ctx, args)
}

// ValidateArgs validates the provided arguments against the tool's parameters
func (t *Tool) ValidateArgs(args map[string]any) error {
	for _, param := range t.Parameters {
		if !param.Required {
			continue
		}
		v, ok := args[param.Name]
		if !ok || v == nil {
			return fmt.Errorf("missing required parameter: %s", param.Name)
		}
		if param.Type == "string" {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				return fmt.Errorf("parameter %s cannot be empty", param.Name)
			}
		}
	}
	return nil
}

// Schema returns the tool declaration in JSON-schema form.
func (t *Tool) Schema() Schema {
	if t.InputSchema != nil {
		return Schema{Name: t.Name, Description: t.Description, Parameters: t.InputSchema}
	}

	properties := make(map[string]any, len(t.Parameters))
	required := make([]string, 0)
	for _, param := range t.Parameters {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Type == "array" {
			items := param.Items
			if items == "" {
				items = "string"
			}
			prop["items"] = map[string]any{"type": items}
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	return Schema{
		Name:        t.Name,
		Description: t.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// Registry manages a collection of tools
// All operations are thread-safe using RWMutex protection
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	providerMu sync.Mutex
	providers  map[Provider]context.CancelFunc
	logger     *slog.Logger
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]*Tool),
		providers: make(map[Provider]context.CancelFunc),
		logger:    logging.WithComponent("tool_registry"),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tools ...*Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range tools {
		if tool == nil || tool.Name == "" {
			return fmt.Errorf("tool name cannot be empty")
		}
		if _, exists := r.tools[tool.Name]; exists {
			return fmt.Errorf("tool %s already registered", tool.Name)
		}
		r.tools[tool.Name] = tool
	}
	return nil
}

// Upsert adds or replaces a tool definition in the registry.
func (r *Registry) Upsert(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Schemas returns the declarations of all tools, sorted by name.
func (r *Registry) Schemas() []Schema {
	tools := r.List()
	schemas := make([]Schema, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, tool.Schema())
	}
	return schemas
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name with given arguments
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return tool.Execute(ctx, args)
}

// AddProvider loads the provider's tools and keeps them current while the
// provider signals changes.
func (r *Registry) AddProvider(ctx context.Context, provider Provider) error {
	if provider == nil {
		return nil
	}
	if err := r.refresh(ctx, provider); err != nil {
		return err
	}

	ch := provider.ToolsChanged()
	if ch == nil {
		return nil
	}

	r.providerMu.Lock()
	if _, exists := r.providers[provider]; exists {
		r.providerMu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	r.providers[provider] = cancel
	r.providerMu.Unlock()

	go r.watch(watchCtx, provider, ch)
	return nil
}

// Close stops provider watchers and closes the providers.
func (r *Registry) Close() error {
	r.providerMu.Lock()
	providers := r.providers
	r.providers = make(map[Provider]context.CancelFunc)
	r.providerMu.Unlock()

	var firstErr error
	for provider, cancel := range providers {
		cancel()
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) refresh(ctx context.Context, provider Provider) error {
	tools, err := provider.Tools(ctx)
	if err != nil {
		return fmt.Errorf("load tools from provider: %w", err)
	}
	for _, t := range tools {
		if t == nil || t.Name == "" {
			continue
		}
		if err := r.Upsert(t); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) watch(ctx context.Context, provider Provider, ch <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := r.refresh(ctx, provider); err != nil {
				r.logger.Warn("failed to refresh provider tools", "error", err)
			}
		}
	}
}
