package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a process-local job queue, used by tests and by any
// deployment that runs a single dialogd process with no external queue.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	keys []string // insertion order, so Dequeue prefers older jobs first
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func cloneJob(j *Job) *Job {
	clone := *j
	return &clone
}

func (s *MemoryStore) Enqueue(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("jobs: job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("jobs: job %s already exists", job.ID)
	}
	now := time.Now()
	job.Status = StatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	s.keys = append(s.keys, job.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("jobs: job %s: %w", id, ErrNotFound)
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) Dequeue(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range s.keys {
		j := s.jobs[id]
		due := j.Status == StatusQueued || (j.Status == StatusRunning && j.LeaseUntil != nil && j.LeaseUntil.Before(now))
		if !due {
			continue
		}
		j.Status = StatusRunning
		j.WorkerID = workerID
		lease := now.Add(leaseDuration)
		j.LeaseUntil = &lease
		j.Attempt++
		j.UpdatedAt = now
		return cloneJob(j), nil
	}
	return nil, nil
}

func (s *MemoryStore) Complete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("jobs: job %s: %w", jobID, ErrNotFound)
	}
	j.Status = StatusSucceeded
	j.LeaseUntil = nil
	j.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, jobID string, errMsg string, retry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("jobs: job %s: %w", jobID, ErrNotFound)
	}
	j.Error = errMsg
	j.UpdatedAt = time.Now()
	if retry && j.Attempt < j.MaxAttempts {
		j.Status = StatusQueued
		j.LeaseUntil = nil
		j.WorkerID = ""
		return nil
	}
	j.Status = StatusFailed
	j.LeaseUntil = nil
	return nil
}
