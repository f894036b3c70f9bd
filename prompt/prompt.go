package prompt

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template represents a prompt template with variables
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses content. Missing variables are reported as errors when
// rendering rather than printed as "<no value>".
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"join":  strings.Join,
			"quote": func(s string) string { return fmt.Sprintf("%q", s) },
		}).
		Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render renders the template with given variables
func (t *Template) Render(vars map[string]any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Manager manages prompt templates
// All operations are thread-safe using RWMutex protection
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates a new prompt manager
func NewManager() *Manager {
	return &Manager{
		templates: make(map[string]*Template),
	}
}

// RegisterString registers a template from string content
func (m *Manager) RegisterString(name, content string) error {
	if name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[name]; exists {
		return fmt.Errorf("template %s already registered", name)
	}
	m.templates[name] = tmpl
	return nil
}

// MustRegister registers built-in templates and panics on a parse error.
func (m *Manager) MustRegister(name, content string) *Manager {
	if err := m.RegisterString(name, content); err != nil {
		panic(err)
	}
	return m
}

// Render renders a template by name with given variables
func (m *Manager) Render(name string, vars map[string]any) (string, error) {
	m.mu.RLock()
	tmpl, ok := m.templates[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}
	return tmpl.Render(vars)
}

// Builder assembles an instruction from ordered sections separated by blank
// lines. Empty sections are dropped.
type Builder struct {
	parts []string
}

// NewBuilder creates a new prompt builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a part.
func (b *Builder) Add(part string) *Builder {
	if part = strings.TrimSpace(part); part != "" {
		b.parts = append(b.parts, part)
	}
	return b
}

// AddFormat appends a formatted part.
func (b *Builder) AddFormat(format string, args ...any) *Builder {
	return b.Add(fmt.Sprintf(format, args...))
}

// Build returns the final prompt string
func (b *Builder) Build() string {
	return strings.Join(b.parts, "\n\n")
}
