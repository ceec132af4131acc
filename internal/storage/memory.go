package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dialogforge/core/internal/models"
)

// MemoryStore is a process-local, mutex-guarded DialogStore and MessageStore
// implementation: the default for tests and for the analyze-dependencies
// pre-flight path that never touches a real dialog.
type MemoryStore struct {
	mu       sync.RWMutex
	dialogs  map[string]*models.Dialog
	messages map[string][]*models.Message // dialogID -> messages in insertion order
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dialogs:  make(map[string]*models.Dialog),
		messages: make(map[string][]*models.Message),
	}
}

func cloneDialog(d *models.Dialog) *models.Dialog {
	clone := *d
	clone.Messages = nil
	return &clone
}

func (m *MemoryStore) Create(ctx context.Context, dialog *models.Dialog) error {
	if dialog == nil || dialog.ID == "" {
		return fmt.Errorf("storage: dialog id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.dialogs[dialog.ID]; exists {
		return fmt.Errorf("storage: dialog %s already exists", dialog.ID)
	}
	now := time.Now()
	dialog.CreatedAt = now
	dialog.UpdatedAt = now
	m.dialogs[dialog.ID] = cloneDialog(dialog)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*models.Dialog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.dialogs[id]
	if !ok {
		return nil, fmt.Errorf("storage: dialog %s: %w", id, ErrNotFound)
	}
	return cloneDialog(d), nil
}

func (m *MemoryStore) GetWithMessages(ctx context.Context, id string) (*models.Dialog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.dialogs[id]
	if !ok {
		return nil, fmt.Errorf("storage: dialog %s: %w", id, ErrNotFound)
	}
	out := cloneDialog(d)
	msgs := m.messages[id]
	out.Messages = make([]models.Message, len(msgs))
	for i, msg := range msgs {
		out.Messages[i] = *msg
	}
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, dialog *models.Dialog) error {
	if dialog == nil || dialog.ID == "" {
		return fmt.Errorf("storage: dialog id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.dialogs[dialog.ID]
	if !ok {
		return fmt.Errorf("storage: dialog %s: %w", dialog.ID, ErrNotFound)
	}
	clone := cloneDialog(dialog)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	m.dialogs[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetRecent(ctx context.Context, limit int) ([]*models.Dialog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Dialog, 0, len(m.dialogs))
	for _, d := range m.dialogs {
		out = append(out, cloneDialog(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FilterByStatus(ctx context.Context, status models.DialogStatus, limit int) ([]*models.Dialog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Dialog
	for _, d := range m.dialogs {
		if d.Status == status {
			out = append(out, cloneDialog(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveDialog updates the dialog row and appends pendingMessages atomically
// under the store's single mutex, fixing parent-chain linkage for any
// message whose ParentID was left unset.
func (m *MemoryStore) SaveDialog(ctx context.Context, dialog *models.Dialog, pendingMessages []*models.Message) error {
	if dialog == nil || dialog.ID == "" {
		return fmt.Errorf("storage: dialog id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.dialogs[dialog.ID]
	if !ok {
		return fmt.Errorf("storage: dialog %s: %w", dialog.ID, ErrNotFound)
	}

	existingMsgs := m.messages[dialog.ID]
	var lastID *string
	if len(existingMsgs) > 0 {
		id := existingMsgs[len(existingMsgs)-1].ID
		lastID = &id
	}
	for _, msg := range pendingMessages {
		if msg.ParentID == nil {
			msg.ParentID = lastID
		}
		id := msg.ID
		lastID = &id
	}

	clone := cloneDialog(dialog)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	m.dialogs[clone.ID] = clone

	for _, msg := range pendingMessages {
		m.messages[dialog.ID] = upsertMessage(m.messages[dialog.ID], msg)
	}
	return nil
}

func upsertMessage(list []*models.Message, msg *models.Message) []*models.Message {
	clone := *msg
	for i, existing := range list {
		if existing.ID == clone.ID {
			list[i] = &clone
			return list
		}
	}
	return append(list, &clone)
}

func (m *MemoryStore) Upsert(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("storage: message id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.DialogID] = upsertMessage(m.messages[msg.DialogID], msg)
	return nil
}

func (m *MemoryStore) GetByDialog(ctx context.Context, dialogID string) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[dialogID]
	out := make([]*models.Message, len(msgs))
	for i, msg := range msgs {
		clone := *msg
		out[i] = &clone
	}
	return out, nil
}
