package completion

import (
	"context"
	"fmt"

	"github.com/dialogforge/core/internal/models"
	"github.com/dialogforge/core/internal/obs"
)

// Service is the dialog-aware façade step handlers call: it builds a
// Request from a dialog's message history, drives it through a Chain, and
// mutates the assistant-stub message in place as chunks arrive, matching
// the Python original's `CompletionService.complete(dialog, broadcast)`.
type Service struct {
	chain  *Chain
	tracer *obs.Tracer
}

// NewService wraps chain in a dialog-aware Service.
func NewService(chain *Chain) *Service {
	return &Service{chain: chain, tracer: obs.NewTracer("dialogd")}
}

// Complete drives assistant (already appended to dialog.Messages, status
// pending, empty text) to completion. onChunk, if non-nil, is called after
// every text extension so a caller can broadcast incremental updates; it
// must not block.
func (s *Service) Complete(ctx context.Context, dialog *models.Dialog, assistant *models.Message, onChunk func(*models.Message)) (err error) {
	ctx, span := s.tracer.StartCompletion(ctx, "chain", assistant.Model)
	defer func() {
		obs.RecordError(span, err)
		span.End()
	}()

	req := &Request{Model: assistant.Model, MaxTokens: 4096}

	for _, m := range dialog.Messages {
		if m.ID == assistant.ID {
			continue
		}
		if m.Role == models.RoleSystem {
			if req.System != "" {
				req.System += "\n"
			}
			req.System += m.Text
			continue
		}
		req.Messages = append(req.Messages, Message{Role: string(m.Role), Content: m.Text})
	}

	chunks, err := s.chain.Complete(ctx, req)
	if err != nil {
		assistant.Status = models.MessageFailed
		dialog.WorkflowData.Errors = append(dialog.WorkflowData.Errors, err.Error())
		return err
	}

	for c := range chunks {
		if c.Text != "" {
			assistant.Text += c.Text
			if onChunk != nil {
				onChunk(assistant)
			}
		}
		if c.Done {
			if c.Error != nil {
				assistant.Status = models.MessageFailed
				dialog.WorkflowData.Errors = append(dialog.WorkflowData.Errors, c.Error.Error())
				return fmt.Errorf("completion: %w", c.Error)
			}
			assistant.Status = models.MessageDelivered
		}
	}

	return nil
}
