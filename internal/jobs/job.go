// Package jobs implements the durable work queue dialogd uses to drive a
// dialog forward: advancing a workflow and running a single step handler
// are both jobs, leased from a shared table so exactly one worker processes
// a given dialog at a time.
package jobs

import (
	"encoding/json"
	"time"
)

// Type discriminates the job payload shape; handlers are registered per
// Type in a Worker.
type Type string

const (
	// TypeRunWorkflow advances a dialog's workflow loop until it blocks
	// on user input, completes, or fails.
	TypeRunWorkflow Type = "dialog_run_workflow"

	// TypeProcessMessage runs a single step's completion and persists the
	// resulting message, used when a step's handler is invoked outside
	// the main RunWorkflow loop (e.g. resuming after user input).
	TypeProcessMessage Type = "process_message"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one unit of queued work.
type Job struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Error       string          `json:"error,omitempty"`

	WorkerID   string     `json:"worker_id,omitempty"`
	LeaseUntil *time.Time `json:"lease_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DialogRunWorkflowPayload is the Payload shape for TypeRunWorkflow.
type DialogRunWorkflowPayload struct {
	DialogID string `json:"dialog_id"`
}

// ProcessMessagePayload is the Payload shape for TypeProcessMessage.
type ProcessMessagePayload struct {
	DialogID  string `json:"dialog_id"`
	StepName  string `json:"step_name"`
	UserInput string `json:"user_input,omitempty"`
}

// NewRunWorkflowJob builds a queued TypeRunWorkflow job for dialogID.
func NewRunWorkflowJob(id, dialogID string, maxAttempts int) (*Job, error) {
	payload, err := json.Marshal(DialogRunWorkflowPayload{DialogID: dialogID})
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:          id,
		Type:        TypeRunWorkflow,
		Payload:     payload,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts,
	}, nil
}

// NewProcessMessageJob builds a queued TypeProcessMessage job.
func NewProcessMessageJob(id, dialogID, stepName, userInput string, maxAttempts int) (*Job, error) {
	payload, err := json.Marshal(ProcessMessagePayload{DialogID: dialogID, StepName: stepName, UserInput: userInput})
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:          id,
		Type:        TypeProcessMessage,
		Payload:     payload,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts,
	}, nil
}
