// Package engine drives a Dialog's state machine one step at a time:
// GetCurrentStep, CanExecuteStep (the handler's Readiness gate), and
// ExecuteNextStep (the single advance, grounded on the Python original's
// engine.py execute_next_step). Per the Design Notes, this is a plain Go
// loop over an explicit transition table (state.go), not an FSM library —
// the example corpus has no state-machine dependency to ground one on, and
// Go's switch/loop expresses the same four-state walk with less ceremony
// than wiring a generic graph library for a linear chain.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dialogforge/core/internal/broadcast"
	"github.com/dialogforge/core/internal/handlers"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/obs"
	"github.com/dialogforge/core/internal/retry"
	"github.com/dialogforge/core/internal/storage"
)

// Metrics is the small surface the engine reports to; internal/obs's
// Prometheus-backed recorder implements it. Left nil, the engine simply
// skips instrumentation, the same nil-is-a-no-op convention broadcast.Hub
// uses for an absent Publisher.
type Metrics interface {
	ObserveStepDuration(stepType string, d time.Duration)
	IncStepFailure(stepType string)
}

// TransitionResult is ExecuteNextStep/RunWorkflow's outcome, the Go shape
// of the Python original's WorkflowTransitionResult.
type TransitionResult struct {
	Success           bool
	State             string
	Message           string
	WaitingForInput   bool
	RequiredVariables []string
}

// Engine executes a Dialog's workflow against its embedded Template
// snapshot, persisting after every advance.
type Engine struct {
	Store    storage.DialogStore
	Handlers map[models.StepType]handlers.Handler
	Updates  *broadcast.ModelUpdates
	Logger   *slog.Logger
	Metrics  Metrics
	Tracer   *obs.Tracer

	mu          sync.Mutex
	dialogLocks map[string]*sync.Mutex
}

// New builds an Engine. logger may be nil (defaults to slog.Default());
// updates and metrics may be nil. Tracer defaults to a no-op-provider
// tracer scoped to "dialogd" — set Engine.Tracer after construction to
// use a differently-scoped one.
func New(store storage.DialogStore, handlerMap map[models.StepType]handlers.Handler, updates *broadcast.ModelUpdates, logger *slog.Logger, metrics Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Store:       store,
		Handlers:    handlerMap,
		Updates:     updates,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      obs.NewTracer("dialogd"),
		dialogLocks: make(map[string]*sync.Mutex),
	}
}

// GetCurrentStep returns the step at workflow_data.current_step_index
// within the dialog's enabled steps, or false once the index runs past
// the end.
func (e *Engine) GetCurrentStep(dialog *models.Dialog) (models.Step, bool) {
	steps := dialog.Template.EnabledSteps()
	idx := dialog.WorkflowData.CurrentStepIndex
	if idx < 0 || idx >= len(steps) {
		return models.Step{}, false
	}
	return steps[idx], true
}

// CanExecuteStep gates step against its registered handler's CanHandle.
func (e *Engine) CanExecuteStep(ctx context.Context, dialog *models.Dialog, step models.Step) (handlers.Readiness, error) {
	h, ok := e.Handlers[step.Type]
	if !ok {
		return handlers.Readiness{}, &HandlerError{StepName: step.Name, StepType: string(step.Type), Err: &errNoHandler{stepType: string(step.Type)}}
	}
	return h.CanHandle(ctx, dialog, step)
}

// ExecuteNextStep advances dialog by exactly one step, the Go port of
// engine.py's execute_next_step: check for a next step (finalizing and
// persisting if there is none — a deliberate fix of the Python original,
// whose equivalent `finalize` transition is defined but never invoked, so
// a dialog there never actually reaches status=completed/state=end),
// gate it with CanExecuteStep, then run it and persist.
func (e *Engine) ExecuteNextStep(ctx context.Context, dialog *models.Dialog) (TransitionResult, error) {
	step, ok := e.GetCurrentStep(dialog)
	if !ok {
		if dialog.Status != models.DialogFailed {
			dialog.Status = models.DialogCompleted
			dialog.CurrentState = "end"
		}
		if err := e.persist(ctx, dialog); err != nil {
			return TransitionResult{}, err
		}
		return TransitionResult{
			Success: false,
			State:   dialog.CurrentState,
			Message: "No more steps to execute",
		}, nil
	}

	readiness, err := e.CanExecuteStep(ctx, dialog, step)
	if err != nil {
		dialog.WorkflowData.Errors = append(dialog.WorkflowData.Errors, err.Error())
		dialog.Status = models.DialogFailed
		if perr := e.persist(ctx, dialog); perr != nil {
			return TransitionResult{}, perr
		}
		return TransitionResult{
			Success: false,
			State:   dialog.CurrentState,
			Message: fmt.Sprintf("Error executing step: %v", err),
		}, nil
	}

	if !readiness.Ready {
		dialog.Status = models.DialogWaitingForInput
		dialog.WorkflowData.MissingVariables = readiness.Missing
		if err := e.persist(ctx, dialog); err != nil {
			return TransitionResult{}, err
		}
		return TransitionResult{
			Success:           false,
			State:             dialog.CurrentState,
			WaitingForInput:   true,
			RequiredVariables: readiness.Missing,
			Message:           fmt.Sprintf("Waiting for input: %v", readiness.Missing),
		}, nil
	}

	dialog.WorkflowData.MissingVariables = nil
	dialog.Status = models.DialogRunning

	stateIdx := dialog.WorkflowData.CurrentStepIndex
	stepErr := e.executeStep(ctx, dialog, step)
	if stepErr != nil {
		// current_state deliberately does not advance: the step that just
		// failed never finished transitioning into its own state.
		if err := e.persist(ctx, dialog); err != nil {
			return TransitionResult{}, err
		}
		return TransitionResult{
			Success: false,
			State:   dialog.CurrentState,
			Message: fmt.Sprintf("Error executing step: %v", stepErr),
		}, nil
	}

	dialog.CurrentState = StateName(stateIdx)
	if err := e.persist(ctx, dialog); err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{
		Success: true,
		State:   dialog.CurrentState,
		Message: "Step executed successfully",
	}, nil
}

// RunWorkflow repeatedly calls ExecuteNextStep until the dialog suspends:
// a step fails outright, the dialog is waiting for input, or there are no
// more steps (which ExecuteNextStep turns into status=completed). Grounded
// on service.py's run_workflow loop.
func (e *Engine) RunWorkflow(ctx context.Context, dialog *models.Dialog) (TransitionResult, error) {
	var result TransitionResult
	for {
		r, err := e.ExecuteNextStep(ctx, dialog)
		if err != nil {
			return r, err
		}
		result = r
		if !result.Success || dialog.Status == models.DialogWaitingForInput {
			break
		}
	}
	return result, nil
}

// executeStep runs step's handler under its error policy, mutating
// workflow_data.step_results/current_step_index on success (or on a
// continue/fallback policy's recovery path) and workflow_data.errors /
// dialog.Status on a terminal failure.
func (e *Engine) executeStep(ctx context.Context, dialog *models.Dialog, step models.Step) (err error) {
	h, ok := e.Handlers[step.Type]
	if !ok {
		return e.failStep(dialog, step, &errNoHandler{stepType: string(step.Type)})
	}

	if e.Tracer != nil {
		var span trace.Span
		ctx, span = e.Tracer.StartStep(ctx, dialog.ID, step.Name, string(step.Type))
		defer func() {
			obs.RecordError(span, err)
			span.End()
		}()
	}

	policy := resolveErrorPolicy(dialog, step)
	before := len(dialog.Messages)
	start := time.Now()

	var result handlers.StepResult
	var handleErr error

	if policy == models.PolicyRetry {
		cfg := retry.Exponential(3, 200*time.Millisecond, 5*time.Second)
		res := retry.Do(ctx, cfg, func() error {
			dialog.Messages = dialog.Messages[:before]
			r, err := h.Handle(ctx, dialog, step)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		handleErr = res.Err
	} else {
		result, handleErr = h.Handle(ctx, dialog, step)
	}

	if e.Metrics != nil {
		e.Metrics.ObserveStepDuration(string(step.Type), time.Since(start))
	}

	e.broadcastNewMessages(ctx, dialog, before)

	if handleErr == nil {
		dialog.WorkflowData.CurrentStepIndex++
		stepResult := map[string]any{"completed": true}
		for k, v := range result.Data {
			stepResult[k] = v
		}
		dialog.WorkflowData.StepResults[step.Name] = stepResult
		return nil
	}

	if e.Metrics != nil {
		e.Metrics.IncStepFailure(string(step.Type))
	}
	wrapped := &HandlerError{StepName: step.Name, StepType: string(step.Type), Err: handleErr}

	switch policy {
	case models.PolicyContinue:
		dialog.WorkflowData.Errors = append(dialog.WorkflowData.Errors, wrapped.Error())
		dialog.WorkflowData.StepResults[step.Name] = map[string]any{"completed": false, "error": wrapped.Error()}
		dialog.WorkflowData.CurrentStepIndex++
		return nil

	case models.PolicyFallback:
		dialog.WorkflowData.Errors = append(dialog.WorkflowData.Errors, wrapped.Error())
		dialog.WorkflowData.StepResults[step.Name] = map[string]any{"completed": false, "error": wrapped.Error()}
		if step.FallbackStep != "" {
			if idx, ok := indexOfStep(dialog.Template, step.FallbackStep); ok {
				dialog.WorkflowData.CurrentStepIndex = idx
				return nil
			}
		}
		dialog.Status = models.DialogFailed
		return wrapped

	default: // PolicyFail, or PolicyRetry exhausted
		return e.failStep(dialog, step, wrapped)
	}
}

func (e *Engine) failStep(dialog *models.Dialog, step models.Step, err error) error {
	dialog.WorkflowData.Errors = append(dialog.WorkflowData.Errors, err.Error())
	dialog.Status = models.DialogFailed
	if _, ok := err.(*HandlerError); ok {
		return err
	}
	return &HandlerError{StepName: step.Name, StepType: string(step.Type), Err: err}
}

func (e *Engine) broadcastNewMessages(ctx context.Context, dialog *models.Dialog, from int) {
	if e.Updates == nil {
		return
	}
	for i := from; i < len(dialog.Messages); i++ {
		_ = e.Updates.Broadcast(ctx, &dialog.Messages[i])
	}
}

// resolveErrorPolicy applies the step-then-template default precedence,
// falling back to PolicyFail (§7's engine default).
func resolveErrorPolicy(dialog *models.Dialog, step models.Step) models.ErrorPolicy {
	if step.ErrorPolicy != "" {
		return step.ErrorPolicy
	}
	if dialog.Template.DefaultErrorPolicy != "" {
		return dialog.Template.DefaultErrorPolicy
	}
	return models.PolicyFail
}

func indexOfStep(tmpl models.Template, name string) (int, bool) {
	for i, s := range tmpl.EnabledSteps() {
		if s.Name == name {
			return i, true
		}
	}
	return 0, false
}

// persist saves dialog (and its full in-memory message slice — SaveDialog
// upserts by id, so resending already-saved messages is harmless) and
// broadcasts a session_update. Per §4.2/§5, saves for a given dialog id are
// serialized by an in-process keyed lock, so two concurrent advances of
// the same dialog (e.g. a retried job and its predecessor's late lease
// expiry) never interleave their writes.
func (e *Engine) persist(ctx context.Context, dialog *models.Dialog) error {
	mu := e.dialogMutex(dialog.ID)
	mu.Lock()
	defer mu.Unlock()

	pending := make([]*models.Message, len(dialog.Messages))
	for i := range dialog.Messages {
		pending[i] = &dialog.Messages[i]
	}

	if err := e.Store.SaveDialog(ctx, dialog, pending); err != nil {
		return fmt.Errorf("engine: persist dialog %s: %w", dialog.ID, err)
	}
	if e.Updates != nil {
		_ = e.Updates.Broadcast(ctx, dialog)
	}
	return nil
}

func (e *Engine) dialogMutex(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.dialogLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.dialogLocks[id] = mu
	}
	return mu
}
