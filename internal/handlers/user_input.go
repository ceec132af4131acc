package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dialogforge/core/internal/broadcast"
	"github.com/dialogforge/core/internal/completion"
	"github.com/dialogforge/core/internal/models"
)

// userInputVariable is the reserved workflow_data.variables key
// WorkflowService.ProvideUserInput writes to and this handler consumes
// (§4.5.3, §4.8).
const userInputVariable = "user_input"

// UserInputStepHandler implements §4.5.3: suspends the dialog until a
// caller supplies user_input, then appends it as a user message and,
// only when the step configures a follow-on model, drives an assistant
// reply through the completion service.
type UserInputStepHandler struct {
	Completion *completion.Service
	Updates    *broadcast.ModelUpdates
}

// NewUserInputStepHandler wires a UserInputStepHandler to its collaborators.
func NewUserInputStepHandler(svc *completion.Service, updates *broadcast.ModelUpdates) *UserInputStepHandler {
	return &UserInputStepHandler{Completion: svc, Updates: updates}
}

// CanHandle reports missing when workflow_data.variables carries no
// user_input yet; the engine turns that into dialog.Status =
// waiting_for_input.
func (h *UserInputStepHandler) CanHandle(ctx context.Context, dialog *models.Dialog, step models.Step) (Readiness, error) {
	if _, ok := dialog.WorkflowData.Variables[userInputVariable]; !ok {
		return MissingResult([]string{userInputVariable}), nil
	}
	return ReadyResult(), nil
}

// Handle consumes the pending user_input variable, appends it as a user
// message, and optionally continues with a model call.
func (h *UserInputStepHandler) Handle(ctx context.Context, dialog *models.Dialog, step models.Step) (StepResult, error) {
	raw, ok := dialog.WorkflowData.Variables[userInputVariable]
	if !ok {
		return WaitingResult([]string{userInputVariable}), nil
	}
	delete(dialog.WorkflowData.Variables, userInputVariable)

	text := fmt.Sprintf("%v", raw)
	role := step.Role
	if role == "" {
		role = models.RoleUser
	}
	userMsg, err := models.NewMessage(uuid.NewString(), dialog.ID, role, text, "")
	if err != nil {
		return StepResult{}, fmt.Errorf("user_input step %q: %w", step.Name, err)
	}
	dialog.Messages = append(dialog.Messages, userMsg)

	result := map[string]any{
		"message_id": userMsg.ID,
		"user_input": raw,
	}

	// A follow-on model call only fires when the step configures a model;
	// the Python original calls unconditionally, but a bare user_input step
	// with no model has nothing to resolve a reply with (§4.5.3).
	if step.Model != "" {
		assistantMsg, err := models.NewMessage(uuid.NewString(), dialog.ID, models.RoleAssistant, "", resolveModel(dialog, step))
		if err != nil {
			return StepResult{}, fmt.Errorf("user_input step %q: %w", step.Name, err)
		}
		assistantMsg.Status = models.MessagePending
		dialog.Messages = append(dialog.Messages, assistantMsg)
		assistantIdx := len(dialog.Messages) - 1

		var onChunk func(*models.Message)
		if h.Updates != nil {
			onChunk = func(m *models.Message) { _ = h.Updates.Broadcast(ctx, m) }
		}
		if err := h.Completion.Complete(ctx, dialog, &dialog.Messages[assistantIdx], onChunk); err != nil {
			return StepResult{}, fmt.Errorf("user_input step %q: %w", step.Name, err)
		}
		result["assistant_message_id"] = assistantMsg.ID
		result["result"] = dialog.Messages[assistantIdx].Text
	}

	return SuccessResult(result), nil
}
