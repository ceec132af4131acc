// Package storage persists Dialogs and Messages. Two implementations share
// one interface per repository, mirroring the teacher's
// sessions.Store/CockroachStore/MemoryStore split: MemoryStore for tests and
// CockroachStore for the durable, transactional path.
package storage

import (
	"context"
	"errors"

	"github.com/dialogforge/core/internal/models"
)

var (
	// ErrNotFound is returned when a lookup by ID finds no row.
	ErrNotFound = errors.New("storage: not found")
)

// DialogStore persists Dialog records (without their message transcript;
// see DialogStore.GetWithMessages for the joined read).
type DialogStore interface {
	Create(ctx context.Context, dialog *models.Dialog) error
	GetByID(ctx context.Context, id string) (*models.Dialog, error)
	GetWithMessages(ctx context.Context, id string) (*models.Dialog, error)
	Update(ctx context.Context, dialog *models.Dialog) error
	GetRecent(ctx context.Context, limit int) ([]*models.Dialog, error)
	FilterByStatus(ctx context.Context, status models.DialogStatus, limit int) ([]*models.Dialog, error)

	// SaveDialog atomically updates the dialog row and upserts pendingMessages
	// in one transaction, fixing parent-chain linkage in declaration order
	// (messages[i].ParentID = messages[i-1].ID whenever the caller didn't set
	// it explicitly). This is the transactional discipline §4.2 requires for
	// every workflow step advance.
	SaveDialog(ctx context.Context, dialog *models.Dialog, pendingMessages []*models.Message) error
}

// MessageStore persists Message records directly, for callers (broadcast
// replay, admin tooling) that don't need the full dialog-plus-messages
// transaction SaveDialog provides.
type MessageStore interface {
	Upsert(ctx context.Context, msg *models.Message) error
	GetByDialog(ctx context.Context, dialogID string) ([]*models.Message, error)
}
