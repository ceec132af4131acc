package models

import "fmt"

// Template is the immutable, versioned recipe for a Dialog (§3). Loaded once
// at boot into the Registry and never mutated afterward; a running Dialog
// embeds a copy so template edits at rest never retroactively change it.
type Template struct {
	Name               string `json:"name" yaml:"name"`
	Model              string `json:"model" yaml:"model"`
	Description        string `json:"description,omitempty" yaml:"description,omitempty"`
	Goal               string `json:"goal,omitempty" yaml:"goal,omitempty"`
	DefaultErrorPolicy ErrorPolicy `json:"default_error_policy,omitempty" yaml:"default_error_policy,omitempty"`
	OutputSchema       string `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	DefaultTool        string `json:"default_tool,omitempty" yaml:"default_tool,omitempty"`
	DefaultResource    string `json:"default_resource,omitempty" yaml:"default_resource,omitempty"`
	DefaultRoot        string `json:"default_root,omitempty" yaml:"default_root,omitempty"`

	Steps []Step `json:"steps" yaml:"steps"`
}

// EnabledSteps returns the steps in declaration order, filtered to those
// with Enabled=true. The engine's state indices (step_0, step_1, ...) are
// assigned only over this slice.
func (t Template) EnabledSteps() []Step {
	out := make([]Step, 0, len(t.Steps))
	for _, s := range t.Steps {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the template-level invariant from §3: every step's
// fallback_step (if present) must name another step in the same template.
// It also validates each step individually and rejects duplicate step names.
func (t Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template: name is required")
	}
	if len(t.Steps) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(t.Steps))
	for _, s := range t.Steps {
		if seen[s.Name] {
			return fmt.Errorf("template %q: duplicate step name %q", t.Name, s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
	}

	for _, s := range t.Steps {
		if s.FallbackStep == "" {
			continue
		}
		if !seen[s.FallbackStep] {
			return fmt.Errorf("template %q: step %q has fallback_step %q which does not exist", t.Name, s.Name, s.FallbackStep)
		}
	}

	return nil
}
