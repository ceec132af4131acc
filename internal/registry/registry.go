// Package registry holds the process-wide, boot-populated lookup tables for
// everything a dialog template can reference by name: templates themselves,
// prompt bodies, JSON schemas, invokable callables, and model identifiers.
//
// The registry is immutable after boot in practice: nothing in this package
// prevents a later call to Add*, but the engine never registers anything
// past startup, and duplicate registration is first-writer-wins with a
// warning rather than an error, matching the tolerant behavior of the
// system this was modeled on.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dialogforge/core/internal/models"
)

// Invokable is a callable step's implementation. Registered under the dotted
// name a Step's Callable field references (e.g. "weather.Lookup").
type Invokable func(ctx context.Context, args map[string]any) (map[string]any, error)

// Schema wraps a compiled JSON Schema alongside its source document, so
// callers can both validate with it and inspect/serialize it.
type Schema struct {
	Name   string
	Doc    map[string]any
	Compiled *jsonschema.Schema
}

// Registry is the keyed store of everything a Template may reference by
// name. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	warnOnDuplicate bool

	templates  map[string]*models.Template
	prompts    map[string]string
	schemas    map[string]*Schema
	invokables map[string]Invokable
	models     map[string]string

	logger *slog.Logger
}

// New returns an empty Registry. warnOnDuplicate controls whether repeated
// registration under the same name logs a warning (true) or is silent.
func New(logger *slog.Logger, warnOnDuplicate bool) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		warnOnDuplicate: warnOnDuplicate,
		templates:       make(map[string]*models.Template),
		prompts:         make(map[string]string),
		schemas:         make(map[string]*Schema),
		invokables:      make(map[string]Invokable),
		models:          make(map[string]string),
		logger:          logger,
	}
}

// AddTemplate registers a template by name. First writer wins: a second
// registration under the same name returns the original and logs a warning.
func (r *Registry) AddTemplate(tpl *models.Template) (*models.Template, error) {
	if tpl == nil {
		return nil, fmt.Errorf("registry: nil template")
	}
	if tpl.Name == "" {
		return nil, fmt.Errorf("registry: template name is required")
	}
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("registry: invalid template %q: %w", tpl.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.templates[tpl.Name]; ok {
		r.warnDuplicate("template", tpl.Name)
		return existing, nil
	}
	r.templates[tpl.Name] = tpl
	return tpl, nil
}

// GetTemplate looks up a template by name.
func (r *Registry) GetTemplate(name string) (*models.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// ListTemplates returns all registered templates, in no particular order.
func (r *Registry) ListTemplates() []*models.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	return out
}

// AddPrompt registers a named prompt body (a template string rendered by
// message/prompt steps that reference it via Step.Template).
func (r *Registry) AddPrompt(name, body string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.prompts[name]; ok {
		r.warnDuplicate("prompt", name)
		return existing
	}
	r.prompts[name] = body
	return body
}

// GetPrompt looks up a prompt body by name.
func (r *Registry) GetPrompt(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// AddSchema compiles and registers a JSON Schema document under name, for
// later use validating a prompt step's output_schema.
func (r *Registry) AddSchema(name string, doc map[string]any) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.schemas[name]; ok {
		r.warnDuplicate("schema", name)
		return existing, nil
	}

	compiler := jsonschema.NewCompiler()
	resourceURL := "mem://" + name
	if err := compiler.AddResource(resourceURL, docToReader(doc)); err != nil {
		return nil, fmt.Errorf("registry: add schema %q: %w", name, err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("registry: compile schema %q: %w", name, err)
	}

	s := &Schema{Name: name, Doc: doc, Compiled: compiled}
	r.schemas[name] = s
	return s, nil
}

// GetSchema looks up a compiled schema by name.
func (r *Registry) GetSchema(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// AddInvokable registers a callable under the dotted name an invoke step's
// Callable field will reference.
func (r *Registry) AddInvokable(name string, fn Invokable) Invokable {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.invokables[name]; ok {
		r.warnDuplicate("invokable", name)
		return existing
	}
	r.invokables[name] = fn
	return fn
}

// GetInvokable looks up a callable by its dotted name.
func (r *Registry) GetInvokable(name string) (Invokable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.invokables[name]
	return fn, ok
}

// AddModel registers a model alias (e.g. "fast" -> "claude-haiku-4-5") so
// templates can reference models by a stable short name.
func (r *Registry) AddModel(alias, fullName string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.models[alias]; ok {
		r.warnDuplicate("model", alias)
		return existing
	}
	r.models[alias] = fullName
	return fullName
}

// ResolveModel returns the full model name for an alias, or the alias
// itself unchanged if it was never registered (so literal model names
// always work without requiring registration).
func (r *Registry) ResolveModel(alias string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if full, ok := r.models[alias]; ok {
		return full
	}
	return alias
}

func (r *Registry) warnDuplicate(kind, name string) {
	if r.warnOnDuplicate {
		r.logger.Warn("registry: duplicate registration ignored", "kind", kind, "name", name)
	}
}
