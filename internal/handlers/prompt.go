package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dialogforge/core/internal/broadcast"
	"github.com/dialogforge/core/internal/completion"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/registry"
)

// PromptStepHandler implements §4.5.2: renders a prompt, appends a
// user-role message and an assistant-role stub, then drives the stub to
// completion through the completion service.
type PromptStepHandler struct {
	Registry   *registry.Registry
	Completion *completion.Service

	// Updates is optional: when set, each incremental text extension of
	// the assistant stub is broadcast as a message_update, per §4.6's
	// streaming side channel.
	Updates *broadcast.ModelUpdates
}

// NewPromptStepHandler wires a PromptStepHandler to its collaborators.
func NewPromptStepHandler(reg *registry.Registry, svc *completion.Service, updates *broadcast.ModelUpdates) *PromptStepHandler {
	return &PromptStepHandler{Registry: reg, Completion: svc, Updates: updates}
}

// CanHandle checks that every variable the referenced prompt declares,
// minus any supplied via template_args, is present in workflow_data.variables.
func (h *PromptStepHandler) CanHandle(ctx context.Context, dialog *models.Dialog, step models.Step) (Readiness, error) {
	if step.Template == "" {
		return ReadyResult(), nil
	}

	declared, err := h.Registry.PromptArguments(step.Template)
	if err != nil {
		return Readiness{}, fmt.Errorf("prompt step %q: %w", step.Name, err)
	}

	var missing []string
	for _, name := range declared {
		if _, supplied := step.TemplateArgs[name]; supplied {
			continue
		}
		if _, bound := dialog.WorkflowData.Variables[name]; !bound {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return MissingResult(missing), nil
	}
	return ReadyResult(), nil
}

// Handle renders the prompt, appends the pending message pair, and calls
// the completion service to fill in the assistant stub.
func (h *PromptStepHandler) Handle(ctx context.Context, dialog *models.Dialog, step models.Step) (StepResult, error) {
	content, err := h.renderContent(dialog, step)
	if err != nil {
		return StepResult{}, fmt.Errorf("prompt step %q: %w", step.Name, err)
	}

	role := step.Role
	if role == "" {
		role = models.RoleUser
	}
	userMsg, err := models.NewMessage(uuid.NewString(), dialog.ID, role, content, "")
	if err != nil {
		return StepResult{}, fmt.Errorf("prompt step %q: %w", step.Name, err)
	}
	userMsg.Status = models.MessagePending
	dialog.Messages = append(dialog.Messages, userMsg)

	model := resolveModel(dialog, step)
	assistantMsg, err := models.NewMessage(uuid.NewString(), dialog.ID, models.RoleAssistant, "", model)
	if err != nil {
		return StepResult{}, fmt.Errorf("prompt step %q: %w", step.Name, err)
	}
	assistantMsg.Status = models.MessagePending
	dialog.Messages = append(dialog.Messages, assistantMsg)
	assistantIdx := len(dialog.Messages) - 1

	if err := h.Completion.Complete(ctx, dialog, &dialog.Messages[assistantIdx], h.chunkCallback(ctx)); err != nil {
		return StepResult{}, fmt.Errorf("prompt step %q: %w", step.Name, err)
	}

	if step.OutputSchema != "" {
		if err := validateOutputSchema(h.Registry, step.OutputSchema, dialog.Messages[assistantIdx].Text); err != nil {
			return StepResult{}, fmt.Errorf("prompt step %q: %w", step.Name, err)
		}
	}

	return SuccessResult(map[string]any{
		"prompt_message_id":    userMsg.ID,
		"assistant_message_id": assistantMsg.ID,
		"result":               dialog.Messages[assistantIdx].Text,
	}), nil
}

func (h *PromptStepHandler) chunkCallback(ctx context.Context) func(*models.Message) {
	if h.Updates == nil {
		return nil
	}
	return func(m *models.Message) {
		_ = h.Updates.Broadcast(ctx, m)
	}
}

func (h *PromptStepHandler) renderContent(dialog *models.Dialog, step models.Step) (string, error) {
	if step.Content != "" {
		return step.Content, nil
	}
	vars := ResolveVariables(dialog, step)
	return h.Registry.RenderPrompt(step.Template, vars)
}
