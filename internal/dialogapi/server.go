package dialogapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dialogforge/core/internal/broadcast"
	"github.com/dialogforge/core/internal/engine"
	"github.com/dialogforge/core/internal/jobs"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/workflow"
)

// Server wires the HTTP surface a dialogd process exposes: creating and
// resuming dialogs (creation and a scalar-input resume go through the job
// queue, so the call returns as soon as the job is durably enqueued, not
// once the workflow finishes; a variable-map resume runs synchronously),
// inspecting a dialog or template, and the observer websocket.
type Server struct {
	Workflow *workflow.Service
	Jobs     jobs.Store
	Observer *broadcast.ObserverHandler
	Logger   *slog.Logger
}

// NewServer wires a Server's collaborators.
func NewServer(svc *workflow.Service, jobStore jobs.Store, observer *broadcast.ObserverHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Workflow: svc, Jobs: jobStore, Observer: observer, Logger: logger}
}

// Mux builds the routed handler for this server: dialog lifecycle under
// /dialogs, template introspection under /templates, the observer stream
// at /ws, plus /healthz and /metrics, the same grouping the teacher's
// startHTTPServer uses for its own mux.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /dialogs", s.createDialog)
	mux.HandleFunc("GET /dialogs/{id}", s.getDialog)
	mux.HandleFunc("POST /dialogs/{id}/input", s.provideInput)
	mux.HandleFunc("GET /templates/{name}/graph", s.templateGraph)
	mux.HandleFunc("GET /templates/{name}/dependencies", s.templateDependencies)

	if s.Observer != nil {
		mux.Handle("/ws", s.Observer)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

type createDialogRequest struct {
	Template         string         `json:"template"`
	Description      string         `json:"description,omitempty"`
	Goal             string         `json:"goal,omitempty"`
	InitialVariables map[string]any `json:"initial_variables,omitempty"`
}

// createDialog instantiates a dialog from a registered template and
// enqueues its first dialog_run_workflow job; the caller polls
// GET /dialogs/{id} to observe progress (or subscribes to /ws).
func (s *Server) createDialog(w http.ResponseWriter, r *http.Request) {
	var req createDialogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Template == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("template is required"))
		return
	}

	dialog, err := s.Workflow.CreateDialogFromTemplate(r.Context(), req.Template, req.Description, req.Goal, req.InitialVariables)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.enqueueRunWorkflow(r.Context(), dialog.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, dialog)
}

func (s *Server) getDialog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dialog, err := s.Workflow.GetDialog(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, dialog)
}

type provideInputRequest struct {
	Input any `json:"input"`
}

// provideInput resumes a dialog waiting on user input. A scalar input is
// queued as a process_message job rather than applied inline, for the same
// reason creation is: exactly one worker advances a given dialog at a
// time (§5), and the HTTP handler is not that worker. A variable-map input
// is the exception: it is applied synchronously, as described below.
func (s *Server) provideInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req provideInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	userInput := fmt.Sprintf("%v", req.Input)
	if m, ok := req.Input.(map[string]any); ok {
		// A variable map resume is applied directly: the job payload only
		// carries a string, so a variable-map resume bypasses the queue
		// and resolves synchronously through the same engine entry point
		// the queued path uses. ProvideUserInput only executes the one
		// step the input unblocked, so the dialog is then run on to its
		// next suspension before the response is written.
		result, err := s.Workflow.ProvideUserInput(r.Context(), id, m)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if result.Success {
			dialog, err := s.Workflow.GetDialog(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if dialog.Status == models.DialogRunning {
				result, err = s.Workflow.RunWorkflow(r.Context(), dialog)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
			}
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	job, err := jobs.NewProcessMessageJob(uuid.NewString(), id, "", userInput, 3)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.Jobs.Enqueue(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) templateGraph(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tpl, ok := s.Workflow.Registry.GetTemplate(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("template %q not found", name))
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(engine.DOT(*tpl)))
}

func (s *Server) templateDependencies(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tpl, ok := s.Workflow.Registry.GetTemplate(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("template %q not found", name))
		return
	}
	deps := s.Workflow.AnalyzeDependencies(*tpl)
	writeJSON(w, http.StatusOK, deps.Summary())
}

func (s *Server) enqueueRunWorkflow(ctx context.Context, dialogID string) error {
	job, err := jobs.NewRunWorkflowJob(uuid.NewString(), dialogID, 3)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.Jobs.Enqueue(ctx, job)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
