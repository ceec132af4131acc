package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_EnqueueAndGet(t *testing.T) {
	s := NewMemoryStore()
	job, err := NewRunWorkflowJob("j1", "d1", 3)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(context.Background(), job))

	got, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
}

func TestMemoryStore_DequeueClaimsOldestQueued(t *testing.T) {
	s := NewMemoryStore()
	j1, _ := NewRunWorkflowJob("j1", "d1", 3)
	j2, _ := NewRunWorkflowJob("j2", "d2", 3)
	require.NoError(t, s.Enqueue(context.Background(), j1))
	require.NoError(t, s.Enqueue(context.Background(), j2))

	claimed, err := s.Dequeue(context.Background(), "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "j1", claimed.ID)
	assert.Equal(t, StatusRunning, claimed.Status)
	assert.Equal(t, "w1", claimed.WorkerID)
	assert.Equal(t, 1, claimed.Attempt)
}

func TestMemoryStore_DequeueReturnsNilWhenNothingDue(t *testing.T) {
	s := NewMemoryStore()
	claimed, err := s.Dequeue(context.Background(), "w1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestMemoryStore_DequeueReclaimsExpiredLease(t *testing.T) {
	s := NewMemoryStore()
	job, _ := NewRunWorkflowJob("j1", "d1", 3)
	require.NoError(t, s.Enqueue(context.Background(), job))

	_, err := s.Dequeue(context.Background(), "w1", -time.Minute) // lease already expired
	require.NoError(t, err)

	reclaimed, err := s.Dequeue(context.Background(), "w2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, "w2", reclaimed.WorkerID)
	assert.Equal(t, 2, reclaimed.Attempt)
}

func TestMemoryStore_CompleteMarksSucceeded(t *testing.T) {
	s := NewMemoryStore()
	job, _ := NewRunWorkflowJob("j1", "d1", 3)
	require.NoError(t, s.Enqueue(context.Background(), job))
	_, err := s.Dequeue(context.Background(), "w1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Complete(context.Background(), "j1"))
	got, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestMemoryStore_FailRetriesUntilMaxAttempts(t *testing.T) {
	s := NewMemoryStore()
	job, _ := NewRunWorkflowJob("j1", "d1", 2)
	require.NoError(t, s.Enqueue(context.Background(), job))

	_, err := s.Dequeue(context.Background(), "w1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Fail(context.Background(), "j1", "boom", true))

	got, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status, "should be retried, attempt 1 of 2")

	_, err = s.Dequeue(context.Background(), "w1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Fail(context.Background(), "j1", "boom again", true))

	got, err = s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status, "attempt 2 of 2 should be terminal")
}

func TestMemoryStore_GetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
