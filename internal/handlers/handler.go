// Package handlers implements the four pluggable step behaviors §4.5
// describes: message, prompt, user_input, invoke. Every handler satisfies
// the same two-method contract; the engine (internal/engine) is the only
// caller and the only thing allowed to mutate dialog.Status, per the
// Design Notes' unification of "handler returns false" and "handler sets
// status" into a single typed Readiness result.
package handlers

import (
	"context"

	"github.com/dialogforge/core/internal/models"
)

// Readiness is CanHandle's typed result: either the step is ready to run,
// or it is blocked on a named set of missing variables. Only the engine
// turns a Missing readiness into dialog.Status = waiting_for_input.
type Readiness struct {
	Ready   bool
	Missing []string
}

// ReadyResult reports a step with no missing inputs.
func ReadyResult() Readiness { return Readiness{Ready: true} }

// MissingResult reports a step blocked on the named variables, in
// declaration order.
func MissingResult(vars []string) Readiness { return Readiness{Ready: false, Missing: vars} }

// StepResult is handle's outcome: §4.5/§7's WorkflowTransitionResult
// payload, before the engine folds it into workflow_data.step_results.
type StepResult struct {
	Success           bool
	State             string
	Message           string
	Data              map[string]any
	Context           map[string]any
	WaitingForInput   bool
	RequiredVariables []string
}

// SuccessResult builds a successful StepResult carrying data.
func SuccessResult(data map[string]any) StepResult {
	return StepResult{Success: true, Data: data}
}

// WaitingResult builds a suspension StepResult, used by UserInputStepHandler
// when invoked directly (outside a CanHandle gate) with no input available.
func WaitingResult(required []string) StepResult {
	return StepResult{Success: false, WaitingForInput: true, RequiredVariables: required}
}

// Handler is the contract every step type implements (§4.5).
type Handler interface {
	// CanHandle gates whether the engine may fire this step's transition.
	CanHandle(ctx context.Context, dialog *models.Dialog, step models.Step) (Readiness, error)

	// Handle executes the step. Only called after CanHandle reports Ready.
	Handle(ctx context.Context, dialog *models.Dialog, step models.Step) (StepResult, error)
}

// ResolveVariables applies §4.5's variable precedence: start from
// workflow_data.variables, overlay step.template_args (template_args wins
// on key collision).
func ResolveVariables(dialog *models.Dialog, step models.Step) map[string]any {
	out := make(map[string]any, len(dialog.WorkflowData.Variables)+len(step.TemplateArgs))
	for k, v := range dialog.WorkflowData.Variables {
		out[k] = v
	}
	for k, v := range step.TemplateArgs {
		out[k] = v
	}
	return out
}

// resolveModel returns the step's model override if set, else the dialog
// template's default model.
func resolveModel(dialog *models.Dialog, step models.Step) string {
	if step.Model != "" {
		return step.Model
	}
	return dialog.Template.Model
}
