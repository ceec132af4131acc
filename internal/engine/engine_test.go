package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogforge/core/internal/handlers"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/registry"
	"github.com/dialogforge/core/internal/storage"
)

func newDialog(tpl models.Template) *models.Dialog {
	now := time.Now()
	return &models.Dialog{
		ID:           uuid.NewString(),
		Status:       models.DialogPending,
		CurrentState: "start",
		WorkflowData: models.NewWorkflowData(),
		Template:     tpl,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func messageTemplate(steps ...models.Step) models.Template {
	return models.Template{Name: "t1", Model: "claude-sonnet", Steps: steps}
}

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryStore) {
	t.Helper()
	reg := registry.New(nil, true)
	store := storage.NewMemoryStore()
	handlerMap := map[models.StepType]handlers.Handler{
		models.StepMessage: handlers.NewMessageStepHandler(reg),
	}
	return New(store, handlerMap, nil, nil, nil), store
}

func TestExecuteNextStep_AppendsMessageAndAdvancesState(t *testing.T) {
	eng, store := newTestEngine(t)
	tpl := messageTemplate(models.Step{Name: "greet", Type: models.StepMessage, Enabled: true, Role: models.RoleAssistant, Content: "hi"})
	dialog := newDialog(tpl)
	require.NoError(t, store.Create(context.Background(), dialog))

	result, err := eng.ExecuteNextStep(context.Background(), dialog)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Len(t, dialog.Messages, 1)
	assert.Equal(t, "hi", dialog.Messages[0].Text)
	assert.Equal(t, 1, dialog.WorkflowData.CurrentStepIndex)
}

func TestExecuteNextStep_NoMoreStepsCompletesDialog(t *testing.T) {
	eng, store := newTestEngine(t)
	tpl := messageTemplate() // no steps
	dialog := newDialog(tpl)
	require.NoError(t, store.Create(context.Background(), dialog))

	result, err := eng.ExecuteNextStep(context.Background(), dialog)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.DialogCompleted, dialog.Status)
	assert.Equal(t, "end", dialog.CurrentState)
}

func TestExecuteNextStep_UnknownHandlerFailsDialog(t *testing.T) {
	eng, store := newTestEngine(t)
	tpl := messageTemplate(models.Step{Name: "ask", Type: models.StepInvoke, Enabled: true, Callable: "nope.missing"})
	dialog := newDialog(tpl)
	require.NoError(t, store.Create(context.Background(), dialog))

	result, err := eng.ExecuteNextStep(context.Background(), dialog)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.DialogFailed, dialog.Status)
	assert.NotEmpty(t, dialog.WorkflowData.Errors)
}

func TestRunWorkflow_RunsUntilCompletion(t *testing.T) {
	eng, store := newTestEngine(t)
	tpl := messageTemplate(
		models.Step{Name: "one", Type: models.StepMessage, Enabled: true, Role: models.RoleAssistant, Content: "a"},
		models.Step{Name: "two", Type: models.StepMessage, Enabled: true, Role: models.RoleAssistant, Content: "b"},
	)
	dialog := newDialog(tpl)
	require.NoError(t, store.Create(context.Background(), dialog))

	result, err := eng.RunWorkflow(context.Background(), dialog)
	require.NoError(t, err)

	assert.False(t, result.Success) // final ExecuteNextStep call is the "no more steps" transition
	assert.Equal(t, models.DialogCompleted, dialog.Status)
	assert.Len(t, dialog.Messages, 2)
}

func TestGetCurrentStep_FalseOnceIndexPastEnd(t *testing.T) {
	eng, _ := newTestEngine(t)
	tpl := messageTemplate(models.Step{Name: "one", Type: models.StepMessage, Enabled: true, Role: models.RoleAssistant, Content: "a"})
	dialog := newDialog(tpl)
	dialog.WorkflowData.CurrentStepIndex = 1

	_, ok := eng.GetCurrentStep(dialog)
	assert.False(t, ok)
}

func TestGetCurrentStep_SkipsDisabledSteps(t *testing.T) {
	eng, _ := newTestEngine(t)
	tpl := messageTemplate(
		models.Step{Name: "skip", Type: models.StepMessage, Enabled: false, Role: models.RoleAssistant, Content: "skip"},
		models.Step{Name: "keep", Type: models.StepMessage, Enabled: true, Role: models.RoleAssistant, Content: "keep"},
	)
	dialog := newDialog(tpl)

	step, ok := eng.GetCurrentStep(dialog)
	require.True(t, ok)
	assert.Equal(t, "keep", step.Name)
}
