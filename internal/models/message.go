package models

import (
	"fmt"
	"time"
)

// MessageStatus tracks a Message's delivery lifecycle (§3).
type MessageStatus string

const (
	MessageCreated   MessageStatus = "created"
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// Message is one entry in a Dialog's append-mostly transcript (§3).
type Message struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id,omitempty"`
	DialogID string  `json:"dialog_id"`

	Role     Role          `json:"role"`
	Model    string        `json:"model,omitempty"`
	Text     string        `json:"text"`
	Status   MessageStatus `json:"status"`
	MimeType string        `json:"mime_type"`

	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// NewMessage builds a Message with the MIME-type default and created status,
// applying the invariant that assistant messages must carry a model (§3, §8).
func NewMessage(id, dialogID string, role Role, text string, model string) (Message, error) {
	m := Message{
		ID:        id,
		DialogID:  dialogID,
		Role:      role,
		Model:     model,
		Text:      text,
		Status:    MessageCreated,
		MimeType:  "text/plain",
		Timestamp: time.Now(),
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate enforces the assistant-requires-model invariant (§3, §8).
func (m Message) Validate() error {
	if m.Role == RoleAssistant && m.Model == "" {
		return fmt.Errorf("message %s: assistant messages must carry a model", m.ID)
	}
	return nil
}
