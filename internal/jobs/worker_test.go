package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_DequeuesAndRunsMatchingHandler(t *testing.T) {
	store := NewMemoryStore()
	job, err := NewRunWorkflowJob("j1", "d1", 1)
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(context.Background(), job))

	var mu sync.Mutex
	var handled []string
	handler := HandlerFunc(func(ctx context.Context, j *Job) error {
		mu.Lock()
		handled = append(handled, j.ID)
		mu.Unlock()
		return nil
	})

	w := NewWorker(store, map[Type]Handler{TypeRunWorkflow: handler}, WorkerConfig{PollInterval: 10 * time.Millisecond})
	w.Start(context.Background())
	defer w.Stop(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 1
	}, time.Second, 10*time.Millisecond)

	got, err := store.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestWorker_FailedHandlerMarksJobFailed(t *testing.T) {
	store := NewMemoryStore()
	job, err := NewRunWorkflowJob("j1", "d1", 1)
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(context.Background(), job))

	handler := HandlerFunc(func(ctx context.Context, j *Job) error {
		return errors.New("boom")
	})

	w := NewWorker(store, map[Type]Handler{TypeRunWorkflow: handler}, WorkerConfig{PollInterval: 10 * time.Millisecond})
	w.Start(context.Background())
	defer w.Stop(context.Background())

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), "j1")
		return err == nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_UnknownJobTypeFailsWithoutRetry(t *testing.T) {
	store := NewMemoryStore()
	job, err := NewProcessMessageJob("j1", "d1", "s1", "", 5)
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(context.Background(), job))

	w := NewWorker(store, map[Type]Handler{}, WorkerConfig{PollInterval: 10 * time.Millisecond})
	w.Start(context.Background())
	defer w.Stop(context.Background())

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), "j1")
		return err == nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)
}
