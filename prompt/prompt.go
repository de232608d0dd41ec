// Package prompt holds the text/template prompts sent to the language model
// by each pipeline stage.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	errorskg "github.com/sweetpotato0/ai-advocate/errors"
)

// Template is one named text/template prompt.
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses content. Referencing a missing variable fails at render
// time instead of printing "<no value>" into a prompt.
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("prompt: parse %s: %w", name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render executes the template and trims surrounding whitespace.
func (t *Template) Render(vars map[string]any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("prompt: render %s: %w", t.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Manager is a registry of named stage prompts. It is safe for concurrent
// use; stages only read from it once wiring is done.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{templates: make(map[string]*Template)}
}

// Register adds a template. Names must be unique.
func (m *Manager) Register(tmpl *Template) error {
	if tmpl == nil || tmpl.Name == "" {
		return fmt.Errorf("prompt: template name: %w", errorskg.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[tmpl.Name]; exists {
		return fmt.Errorf("prompt: %s already registered: %w", tmpl.Name, errorskg.ErrInvalidInput)
	}
	m.templates[tmpl.Name] = tmpl
	return nil
}

// RegisterString parses content and registers it under name.
func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// Override replaces a registered template. Unknown names are rejected so a
// typo in configuration does not go unnoticed.
func (m *Manager) Override(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[name]; !exists {
		return fmt.Errorf("prompt: %s: %w", name, errorskg.ErrNotFound)
	}
	m.templates[name] = tmpl
	return nil
}

// Apply overrides every named template and reports all failures together,
// in name order.
func (m *Manager) Apply(overrides map[string]string) error {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := m.Override(name, overrides[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get retrieves a template by name.
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("prompt: %s: %w", name, errorskg.ErrNotFound)
	}
	return tmpl, nil
}

// Render renders a template by name.
func (m *Manager) Render(name string, vars map[string]any) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars)
}

// Builder assembles the user side of a stage prompt from titled sections.
type Builder struct {
	parts []string
}

// NewBuilder creates a new prompt builder
func NewBuilder() *Builder {
	return &Builder{}
}

// AddFormat adds a formatted part to the prompt
func (b *Builder) AddFormat(format string, args ...any) *Builder {
	b.parts = append(b.parts, fmt.Sprintf(format, args...))
	return b
}

// AddSection adds a section with title and content. Empty content is skipped.
func (b *Builder) AddSection(title, content string) *Builder {
	if strings.TrimSpace(content) == "" {
		return b
	}
	b.parts = append(b.parts, fmt.Sprintf("## %s\n%s\n\n", title, strings.TrimSpace(content)))
	return b
}

// Build returns the final prompt string
func (b *Builder) Build() string {
	return strings.TrimSpace(strings.Join(b.parts, ""))
}
