// Package dialogapi is the process's external surface: the HTTP handlers
// callers drive a dialog through, and the job.Handler implementations a
// Worker dispatches to. Grounded on the teacher's internal/gateway
// (http_server.go's mux wiring) and internal/tasks (scheduler/executor
// job-type dispatch) packages, scoped to this module's four operations.
package dialogapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dialogforge/core/internal/jobs"
	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/workflow"
)

// JobHandlers returns the Type -> Handler map a jobs.Worker dispatches
// through: dialog_run_workflow drives the step loop, process_message
// resumes a dialog suspended on waiting_for_input.
func JobHandlers(svc *workflow.Service) map[jobs.Type]jobs.Handler {
	return map[jobs.Type]jobs.Handler{
		jobs.TypeRunWorkflow:    jobs.HandlerFunc(runWorkflowHandler(svc)),
		jobs.TypeProcessMessage: jobs.HandlerFunc(processMessageHandler(svc)),
	}
}

func runWorkflowHandler(svc *workflow.Service) func(ctx context.Context, job *jobs.Job) error {
	return func(ctx context.Context, job *jobs.Job) error {
		var payload jobs.DialogRunWorkflowPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("dialogapi: decode run_workflow payload: %w", err)
		}

		dialog, err := svc.GetDialog(ctx, payload.DialogID)
		if err != nil {
			return err
		}
		_, err = svc.RunWorkflow(ctx, dialog)
		return err
	}
}

// processMessageHandler applies the resumed input and then drives the
// dialog on to its next suspension point: ProvideUserInput only executes
// the one step the input unblocked, so without this the dialog would be
// left at status=running after a single step instead of reaching
// completed/failed/waiting_for_input.
func processMessageHandler(svc *workflow.Service) func(ctx context.Context, job *jobs.Job) error {
	return func(ctx context.Context, job *jobs.Job) error {
		var payload jobs.ProcessMessagePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("dialogapi: decode process_message payload: %w", err)
		}

		result, err := svc.ProvideUserInput(ctx, payload.DialogID, payload.UserInput)
		if err != nil || !result.Success {
			return err
		}

		dialog, err := svc.GetDialog(ctx, payload.DialogID)
		if err != nil {
			return err
		}
		if dialog.Status != models.DialogRunning {
			return nil
		}
		_, err = svc.RunWorkflow(ctx, dialog)
		return err
	}
}
