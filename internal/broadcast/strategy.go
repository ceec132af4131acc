package broadcast

import (
	"context"
	"reflect"
	"sync"

	"github.com/dialogforge/core/internal/models"
)

// Event is one (name, payload) pair a Strategy wants broadcast for a model
// update.
type Event struct {
	Name string
	Data any
}

// Strategy decides whether a model update is worth broadcasting and, if so,
// what events to emit for it.
type Strategy interface {
	ShouldBroadcast(model any) bool
	Events(model any) []Event
}

// MessageStrategy broadcasts every message update except one in the initial
// "created" status (the status message and user_input steps give the
// messages they append), and adds completion/error events
// for the statuses that end a message's lifecycle.
type MessageStrategy struct{}

func (MessageStrategy) ShouldBroadcast(m any) bool {
	msg, ok := m.(*models.Message)
	return ok && msg.Status != models.MessageCreated
}

func (MessageStrategy) Events(m any) []Event {
	msg := m.(*models.Message)
	events := []Event{{
		Name: "message_update",
		Data: map[string]any{
			"id":        msg.ID,
			"dialog_id": msg.DialogID,
			"status":    msg.Status,
			"role":      msg.Role,
			"text":      msg.Text,
			"timestamp": msg.Timestamp,
		},
	}}

	switch {
	case msg.Status == models.MessageDelivered && msg.Role == models.RoleAssistant:
		events = append(events, Event{
			Name: "completion_finished",
			Data: map[string]any{"message_id": msg.ID, "dialog_id": msg.DialogID},
		})
	case msg.Status == models.MessageFailed:
		errMsg := "unknown error"
		if msg.Extra != nil {
			if e, ok := msg.Extra["error"].(string); ok && e != "" {
				errMsg = e
			}
		}
		events = append(events, Event{
			Name: "message_error",
			Data: map[string]any{"message_id": msg.ID, "dialog_id": msg.DialogID, "error": errMsg},
		})
	}
	return events
}

// DialogStrategy always broadcasts a dialog update, adding a status-specific
// event for the three statuses an observer cares most about: waiting for
// the next user_input step, completed, and failed.
type DialogStrategy struct{}

func (DialogStrategy) ShouldBroadcast(m any) bool {
	_, ok := m.(*models.Dialog)
	return ok
}

func (DialogStrategy) Events(m any) []Event {
	d := m.(*models.Dialog)
	events := []Event{{
		Name: "session_update",
		Data: map[string]any{
			"id":            d.ID,
			"status":        d.Status,
			"current_state": d.CurrentState,
			"description":   d.Description,
			"created_at":    d.CreatedAt,
		},
	}}

	switch d.Status {
	case models.DialogWaitingForInput:
		prompt := "Input required"
		for _, step := range d.Template.Steps {
			if step.Name == d.CurrentState && step.Prompt != "" {
				prompt = step.Prompt
				break
			}
		}
		events = append(events, Event{
			Name: "user_input_required",
			Data: map[string]any{"dialog_id": d.ID, "prompt": prompt},
		})
	case models.DialogCompleted:
		events = append(events, Event{Name: "session_completed", Data: map[string]any{"dialog_id": d.ID}})
	case models.DialogFailed:
		errMsg := d.Error
		if errMsg == "" {
			errMsg = "unknown error"
		}
		events = append(events, Event{
			Name: "session_error",
			Data: map[string]any{"dialog_id": d.ID, "error": errMsg},
		})
	}
	return events
}

// ModelUpdates dispatches a model's registered Strategy, mirroring the
// type-keyed registry the workflow engine and registry package already use
// elsewhere for first-writer-wins lookups, adapted here to Go's lack of a
// runtime class object: reflect.TypeOf stands in for Python's type().
type ModelUpdates struct {
	mu         sync.RWMutex
	hub        *Hub
	strategies map[reflect.Type]Strategy
}

// NewModelUpdates returns a dispatcher with the default Message and Dialog
// strategies registered.
func NewModelUpdates(hub *Hub) *ModelUpdates {
	mu := &ModelUpdates{
		hub:        hub,
		strategies: make(map[reflect.Type]Strategy),
	}
	mu.RegisterStrategy(&models.Message{}, MessageStrategy{})
	mu.RegisterStrategy(&models.Dialog{}, DialogStrategy{})
	return mu
}

// RegisterStrategy associates strategy with the concrete type of
// modelSample (a zero-value pointer of the model type being registered).
func (mu *ModelUpdates) RegisterStrategy(modelSample any, strategy Strategy) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	mu.strategies[reflect.TypeOf(modelSample)] = strategy
}

// Broadcast looks up model's strategy and, if it should broadcast, emits
// every event the strategy produces through the hub.
func (mu *ModelUpdates) Broadcast(ctx context.Context, model any) error {
	mu.mu.RLock()
	strategy, ok := mu.strategies[reflect.TypeOf(model)]
	mu.mu.RUnlock()
	if !ok {
		return nil
	}
	if !strategy.ShouldBroadcast(model) {
		return nil
	}
	for _, ev := range strategy.Events(model) {
		if err := mu.hub.Broadcast(ctx, ev.Name, ev.Data); err != nil {
			return err
		}
	}
	return nil
}
