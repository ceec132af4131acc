package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogforge/core/internal/models"
)

func TestMemoryStore_CreateAndGetByID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	d := &models.Dialog{ID: "d1", Status: models.DialogPending, CurrentState: "start"}
	require.NoError(t, s.Create(ctx, d))

	got, err := s.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryStore_GetByID_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveDialog_FixesParentChain(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := &models.Dialog{ID: "d1", Status: models.DialogRunning, CurrentState: "step_0"}
	require.NoError(t, s.Create(ctx, d))

	m1 := &models.Message{ID: "m1", DialogID: "d1", Role: models.RoleUser, Text: "hi"}
	m2 := &models.Message{ID: "m2", DialogID: "d1", Role: models.RoleAssistant, Model: "x", Text: "hello"}

	require.NoError(t, s.SaveDialog(ctx, d, []*models.Message{m1, m2}))

	msgs, err := s.GetByDialog(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].ParentID)
	require.NotNil(t, msgs[1].ParentID)
	assert.Equal(t, "m1", *msgs[1].ParentID)
}

func TestMemoryStore_SaveDialog_ChainsAcrossCalls(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := &models.Dialog{ID: "d1", Status: models.DialogRunning, CurrentState: "step_0"}
	require.NoError(t, s.Create(ctx, d))

	m1 := &models.Message{ID: "m1", DialogID: "d1", Role: models.RoleUser, Text: "hi"}
	require.NoError(t, s.SaveDialog(ctx, d, []*models.Message{m1}))

	m2 := &models.Message{ID: "m2", DialogID: "d1", Role: models.RoleAssistant, Model: "x", Text: "hello"}
	require.NoError(t, s.SaveDialog(ctx, d, []*models.Message{m2}))

	msgs, err := s.GetByDialog(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].ParentID)
	assert.Equal(t, "m1", *msgs[1].ParentID)
}

func TestMemoryStore_SaveDialog_RespectsExplicitParentID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := &models.Dialog{ID: "d1", Status: models.DialogRunning, CurrentState: "step_0"}
	require.NoError(t, s.Create(ctx, d))

	root := "root-msg"
	m1 := &models.Message{ID: "m1", DialogID: "d1", Role: models.RoleUser, Text: "hi", ParentID: &root}
	require.NoError(t, s.SaveDialog(ctx, d, []*models.Message{m1}))

	msgs, err := s.GetByDialog(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, msgs[0].ParentID)
	assert.Equal(t, "root-msg", *msgs[0].ParentID)
}

func TestMemoryStore_FilterByStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &models.Dialog{ID: "d1", Status: models.DialogRunning, CurrentState: "step_0"}))
	require.NoError(t, s.Create(ctx, &models.Dialog{ID: "d2", Status: models.DialogCompleted, CurrentState: "end"}))

	running, err := s.FilterByStatus(ctx, models.DialogRunning, 10)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "d1", running[0].ID)
}

func TestMemoryStore_Update_NotFound(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), &models.Dialog{ID: "nope"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetWithMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	d := &models.Dialog{ID: "d1", Status: models.DialogRunning, CurrentState: "step_0"}
	require.NoError(t, s.Create(ctx, d))
	require.NoError(t, s.Upsert(ctx, &models.Message{ID: "m1", DialogID: "d1", Role: models.RoleUser, Text: "hi"}))

	got, err := s.GetWithMessages(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Text)
}
