// Package workflow is the facade a caller (cmd/dialogd's HTTP/job surface)
// drives instead of talking to internal/engine directly: creating dialogs
// from a registered template, resuming a suspended one with user input,
// and running the step loop to its next suspension point. Grounded on the
// Python original's src/core/workflow/service.py WorkflowService.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dialogforge/core/internal/engine"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/registry"
	"github.com/dialogforge/core/internal/storage"
)

// Service wires a Registry, an Engine, and a DialogStore into the
// operations a dialog's lifecycle needs end to end.
type Service struct {
	Registry *registry.Registry
	Engine   *engine.Engine
	Store    storage.DialogStore
}

// NewService wires svc's collaborators.
func NewService(reg *registry.Registry, eng *engine.Engine, store storage.DialogStore) *Service {
	return &Service{Registry: reg, Engine: eng, Store: store}
}

// CreateDialogFromTemplate instantiates a new Dialog from a registered
// template, embedding a snapshot of it so later template edits never
// retroactively change an in-flight dialog (§3). description/goal, left
// empty, default to the template's.
func (s *Service) CreateDialogFromTemplate(ctx context.Context, templateName, description, goal string, initialVariables map[string]any) (*models.Dialog, error) {
	tpl, ok := s.Registry.GetTemplate(templateName)
	if !ok {
		return nil, fmt.Errorf("workflow: template %q not found", templateName)
	}

	if description == "" {
		description = tpl.Description
	}
	if goal == "" {
		goal = tpl.Goal
	}

	now := time.Now()
	dialog := &models.Dialog{
		ID:           uuid.NewString(),
		Description:  description,
		Goal:         goal,
		Status:       models.DialogPending,
		CurrentState: "start",
		WorkflowData: models.NewWorkflowData(),
		Template:     *tpl,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for k, v := range initialVariables {
		dialog.WorkflowData.Variables[k] = v
	}

	if err := s.Store.Create(ctx, dialog); err != nil {
		return nil, fmt.Errorf("workflow: create dialog: %w", err)
	}
	return dialog, nil
}

// GetDialog loads a dialog together with its message transcript.
func (s *Service) GetDialog(ctx context.Context, id string) (*models.Dialog, error) {
	dialog, err := s.Store.GetWithMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("workflow: get dialog %s: %w", id, err)
	}
	return dialog, nil
}

// RunWorkflow runs dialog's step loop until it suspends (waits on input,
// fails, or completes).
func (s *Service) RunWorkflow(ctx context.Context, dialog *models.Dialog) (engine.TransitionResult, error) {
	return s.Engine.RunWorkflow(ctx, dialog)
}

// ProvideUserInput resumes a dialog suspended on waiting_for_input. When
// the dialog's missing_variables is non-empty, input must be a variable
// map merged into workflow_data.variables (e.g. a prompt step's unmet
// arguments); otherwise it is a scalar written to the reserved
// user_input variable a UserInputStepHandler reads. Grounded on
// service.py's provide_user_input branch.
func (s *Service) ProvideUserInput(ctx context.Context, dialogID string, input any) (engine.TransitionResult, error) {
	dialog, err := s.GetDialog(ctx, dialogID)
	if err != nil {
		return engine.TransitionResult{}, err
	}
	if dialog == nil {
		return engine.TransitionResult{Success: false, State: "unknown", Message: fmt.Sprintf("dialog %s not found", dialogID)}, nil
	}

	if dialog.Status != models.DialogWaitingForInput {
		return engine.TransitionResult{Success: false, State: dialog.CurrentState, Message: "dialog is not waiting for input"}, nil
	}

	if len(dialog.WorkflowData.MissingVariables) > 0 {
		values, ok := input.(map[string]any)
		if !ok {
			return engine.TransitionResult{Success: false, State: dialog.CurrentState, Message: "expected a variable map for this step's missing inputs"}, nil
		}
		for k, v := range values {
			dialog.WorkflowData.Variables[k] = v
		}
		dialog.WorkflowData.MissingVariables = nil
	} else {
		dialog.WorkflowData.Variables["user_input"] = input
	}

	return s.Engine.ExecuteNextStep(ctx, dialog)
}
