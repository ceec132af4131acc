package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/registry"
)

// MessageStepHandler implements §4.5.1: appends a single literal or
// rendered-template message to the dialog, synchronously, with no LLM
// involvement.
type MessageStepHandler struct {
	Registry *registry.Registry
}

// NewMessageStepHandler wires a MessageStepHandler to reg.
func NewMessageStepHandler(reg *registry.Registry) *MessageStepHandler {
	return &MessageStepHandler{Registry: reg}
}

// CanHandle always reports ready: a message step has no input gate (§4.5.1).
func (h *MessageStepHandler) CanHandle(ctx context.Context, dialog *models.Dialog, step models.Step) (Readiness, error) {
	return ReadyResult(), nil
}

// Handle computes the message content and appends it to the dialog.
func (h *MessageStepHandler) Handle(ctx context.Context, dialog *models.Dialog, step models.Step) (StepResult, error) {
	content, err := h.renderContent(dialog, step)
	if err != nil {
		return StepResult{}, fmt.Errorf("message step %q: %w", step.Name, err)
	}

	model := ""
	if step.Role == models.RoleAssistant {
		model = resolveModel(dialog, step)
	}

	msg, err := models.NewMessage(uuid.NewString(), dialog.ID, step.Role, content, model)
	if err != nil {
		return StepResult{}, fmt.Errorf("message step %q: %w", step.Name, err)
	}
	dialog.Messages = append(dialog.Messages, msg)

	return SuccessResult(map[string]any{
		"message_id": msg.ID,
		"content":    content,
	}), nil
}

func (h *MessageStepHandler) renderContent(dialog *models.Dialog, step models.Step) (string, error) {
	if step.Content != "" {
		return step.Content, nil
	}
	vars := ResolveVariables(dialog, step)
	return h.Registry.RenderPrompt(step.Template, vars)
}
