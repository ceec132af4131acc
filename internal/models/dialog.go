package models

import (
	"time"
)

// DialogStatus is the lifecycle status of a Dialog (§3).
type DialogStatus string

const (
	DialogPending         DialogStatus = "pending"
	DialogRunning         DialogStatus = "running"
	DialogPaused          DialogStatus = "paused"
	DialogCompleted       DialogStatus = "completed"
	DialogFailed          DialogStatus = "failed"
	DialogWaitingForInput DialogStatus = "waiting_for_input"
)

// WorkflowData is the mutable document embedded in a Dialog (§3).
type WorkflowData struct {
	CurrentStepIndex int            `json:"current_step_index"`
	StepResults      map[string]any `json:"step_results"`
	Variables        map[string]any `json:"variables"`
	Errors           []string       `json:"errors"`
	MissingVariables []string       `json:"missing_variables"`
	UserInput        *string        `json:"user_input,omitempty"`
}

// NewWorkflowData returns a zero-value WorkflowData with initialized maps,
// matching the Python original's WorkflowData defaults.
func NewWorkflowData() WorkflowData {
	return WorkflowData{
		StepResults:      map[string]any{},
		Variables:        map[string]any{},
		Errors:           []string{},
		MissingVariables: []string{},
	}
}

// Dialog is a durable, resumable instance of a Template (§3).
type Dialog struct {
	ID          string       `json:"id"`
	Description string       `json:"description,omitempty"`
	Goal        string       `json:"goal,omitempty"`
	Status      DialogStatus `json:"status"`
	CurrentState string      `json:"current_state"`

	WorkflowData WorkflowData `json:"workflow_data"`

	// Template is an embedded snapshot, not a reference, so that template
	// mutation at rest never changes an already-running dialog (§3).
	Template Template `json:"template"`

	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages is populated by GetWithMessages; empty after a bare Get.
	Messages []Message `json:"-"`
}

// EnabledStepCount returns the number of enabled steps in the dialog's
// embedded template snapshot.
func (d *Dialog) EnabledStepCount() int {
	return len(d.Template.EnabledSteps())
}
