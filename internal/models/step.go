package models

import "fmt"

// StepType discriminates the four step variants a Template may contain.
type StepType string

const (
	StepMessage   StepType = "message"
	StepPrompt    StepType = "prompt"
	StepUserInput StepType = "user_input"
	StepInvoke    StepType = "invoke"
)

// Role is a message/step author role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrorPolicy is the step-level (or template-level default) error-handling
// policy referenced by §7. The engine's default is PolicyFail.
type ErrorPolicy string

const (
	PolicyFail     ErrorPolicy = "fail"
	PolicyRetry    ErrorPolicy = "retry"
	PolicyContinue ErrorPolicy = "continue"
	PolicyFallback ErrorPolicy = "fallback"
)

// Step is the tagged-union of the four step variants described in §3.
// Unlike the Python original's class hierarchy, Go has no sum types, so
// Step carries every field and Type discriminates which are meaningful.
// Validate rejects any combination that does not match one of the four
// shapes.
type Step struct {
	Name        string      `json:"name" yaml:"name"`
	Type        StepType    `json:"type" yaml:"type"`
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	ErrorPolicy ErrorPolicy `json:"error_policy,omitempty" yaml:"error_policy,omitempty"`

	// message / prompt fields
	Role         Role           `json:"role,omitempty" yaml:"role,omitempty"`
	Content      string         `json:"content,omitempty" yaml:"content,omitempty"`
	Template     string         `json:"template,omitempty" yaml:"template,omitempty"`
	TemplateArgs map[string]any `json:"template_args,omitempty" yaml:"template_args,omitempty"`

	// prompt-only
	OutputSchema string         `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Model        string         `json:"model,omitempty" yaml:"model,omitempty"`
	ConfigExtra  map[string]any `json:"config_extra,omitempty" yaml:"config_extra,omitempty"`

	// user_input fields
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Prompt       string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// invoke fields
	Callable string `json:"callable,omitempty" yaml:"callable,omitempty"`

	// fallback_step names another step in the same template (§3 invariant).
	FallbackStep string `json:"fallback_step,omitempty" yaml:"fallback_step,omitempty"`
}

// Validate enforces the per-variant shape invariants from §3:
// (content XOR template) for message/prompt steps, and template_args only
// alongside template.
func (s Step) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("step: name is required")
	}

	switch s.Type {
	case StepMessage, StepPrompt:
		hasContent := s.Content != ""
		hasTemplate := s.Template != ""
		if hasContent == hasTemplate {
			return fmt.Errorf("step %q: exactly one of content or template must be set", s.Name)
		}
		if len(s.TemplateArgs) > 0 && !hasTemplate {
			return fmt.Errorf("step %q: template_args requires template", s.Name)
		}
		if s.Type == StepMessage && s.Role == "" {
			return fmt.Errorf("step %q: role is required for message steps", s.Name)
		}
	case StepUserInput:
		// instructions/prompt/template/output_schema are all optional.
	case StepInvoke:
		if s.Callable == "" {
			return fmt.Errorf("step %q: callable is required for invoke steps", s.Name)
		}
	default:
		return fmt.Errorf("step %q: unknown step type %q", s.Name, s.Type)
	}

	return nil
}
