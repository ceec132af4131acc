package handlers

import (
	"context"
	"fmt"

	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/registry"
)

// dialogArgKey is the reserved key under which InvokeStepHandler passes
// the current dialog to an invokable. Go invokables have a fixed
// signature (func(ctx, args) (map[string]any, error)), so unlike the
// Python original's inspect.signature probe for a `session` parameter,
// the dialog is always available, and callables that don't need it
// simply ignore the key.
const dialogArgKey = "dialog"

// InvokeStepHandler implements §4.5.4: resolves a named callable from the
// registry and invokes it with the step's resolved variables.
type InvokeStepHandler struct {
	Registry *registry.Registry
}

// NewInvokeStepHandler wires an InvokeStepHandler to reg.
func NewInvokeStepHandler(reg *registry.Registry) *InvokeStepHandler {
	return &InvokeStepHandler{Registry: reg}
}

// CanHandle always reports ready: an invoke step's inputs are whatever
// the callable itself chooses to read from args, not a declared set.
func (h *InvokeStepHandler) CanHandle(ctx context.Context, dialog *models.Dialog, step models.Step) (Readiness, error) {
	return ReadyResult(), nil
}

// Handle resolves step.Callable and invokes it. Unlike the Python
// original, which catches the callable's exception and returns
// {error, completed: false} without raising, this returns the error
// directly so the engine's single generic failure path records it once
// instead of the handler and engine both appending to workflow_data.errors.
func (h *InvokeStepHandler) Handle(ctx context.Context, dialog *models.Dialog, step models.Step) (StepResult, error) {
	fn, ok := h.Registry.GetInvokable(step.Callable)
	if !ok {
		return StepResult{}, fmt.Errorf("invoke step %q: callable %q not registered", step.Name, step.Callable)
	}

	args := ResolveVariables(dialog, step)
	args[dialogArgKey] = dialog

	result, err := fn(ctx, args)
	if err != nil {
		return StepResult{}, fmt.Errorf("invoke step %q: %w", step.Name, err)
	}

	if step.OutputSchema != "" {
		if err := validateResultSchema(h.Registry, step.OutputSchema, result); err != nil {
			return StepResult{}, fmt.Errorf("invoke step %q: %w", step.Name, err)
		}
	}

	return SuccessResult(map[string]any{"result": result}), nil
}
