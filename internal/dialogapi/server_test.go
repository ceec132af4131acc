package dialogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogforge/core/internal/engine"
	"github.com/dialogforge/core/internal/handlers"
	"github.com/dialogforge/core/internal/jobs"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/registry"
	"github.com/dialogforge/core/internal/storage"
	"github.com/dialogforge/core/internal/workflow"
)

func newTestServer(t *testing.T) (*Server, *jobs.MemoryStore) {
	t.Helper()

	reg := registry.New(nil, true)
	tpl := &models.Template{
		Name: "greet",
		Steps: []models.Step{
			{Name: "say_hi", Type: models.StepMessage, Enabled: true, Role: models.RoleAssistant, Content: "hi there"},
		},
	}
	_, err := reg.AddTemplate(tpl)
	require.NoError(t, err)

	dialogStore := storage.NewMemoryStore()
	handlerMap := map[models.StepType]handlers.Handler{
		models.StepMessage: handlers.NewMessageStepHandler(reg),
	}
	eng := engine.New(dialogStore, handlerMap, nil, nil, nil)
	svc := workflow.NewService(reg, eng, dialogStore)

	jobStore := jobs.NewMemoryStore()
	server := NewServer(svc, jobStore, nil, nil)
	return server, jobStore
}

func TestCreateDialog_EnqueuesRunWorkflowJob(t *testing.T) {
	server, jobStore := newTestServer(t)
	mux := server.Mux()

	body, _ := json.Marshal(createDialogRequest{Template: "greet"})
	req := httptest.NewRequest("POST", "/dialogs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, 202, rec.Code)

	var dialog models.Dialog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dialog))
	assert.NotEmpty(t, dialog.ID)

	job, err := jobStore.Dequeue(context.Background(), "w1", 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.TypeRunWorkflow, job.Type)
}

func TestCreateDialog_UnknownTemplateReturnsBadRequest(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.Mux()

	body, _ := json.Marshal(createDialogRequest{Template: "does-not-exist"})
	req := httptest.NewRequest("POST", "/dialogs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestGetDialog_NotFoundReturns404(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.Mux()

	req := httptest.NewRequest("GET", "/dialogs/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestProvideInput_VariableMapAppliesSynchronously(t *testing.T) {
	server, _ := newTestServer(t)

	dialog, err := server.Workflow.CreateDialogFromTemplate(context.Background(), "greet", "", "", nil)
	require.NoError(t, err)
	dialog.Status = models.DialogWaitingForInput
	dialog.WorkflowData.MissingVariables = []string{"name"}
	require.NoError(t, server.Workflow.Store.Update(context.Background(), dialog))

	mux := server.Mux()
	body, _ := json.Marshal(provideInputRequest{Input: map[string]any{"name": "Ada"}})
	req := httptest.NewRequest("POST", "/dialogs/"+dialog.ID+"/input", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func TestProvideInput_ScalarEnqueuesProcessMessageJob(t *testing.T) {
	server, jobStore := newTestServer(t)

	dialog, err := server.Workflow.CreateDialogFromTemplate(context.Background(), "greet", "", "", nil)
	require.NoError(t, err)

	mux := server.Mux()
	body, _ := json.Marshal(provideInputRequest{Input: "hello"})
	req := httptest.NewRequest("POST", "/dialogs/"+dialog.ID+"/input", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, 202, rec.Code)

	job, err := jobStore.Dequeue(context.Background(), "w1", 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.TypeProcessMessage, job.Type)
}

func TestTemplateGraph_RendersDOT(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.Mux()

	req := httptest.NewRequest("GET", "/templates/greet/graph", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "digraph")
}

func TestTemplateGraph_UnknownTemplateReturns404(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.Mux()

	req := httptest.NewRequest("GET", "/templates/nope/graph", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestTemplateDependencies_ReturnsSummary(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.Mux()

	req := httptest.NewRequest("GET", "/templates/greet/dependencies", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	mux := server.Mux()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
