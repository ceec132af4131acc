package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a job ID has no matching row.
var ErrNotFound = errors.New("jobs: not found")

// Store is the durable job queue's persistence contract. Dequeue is the
// leasing primitive: it must atomically claim at most one due job and mark
// it running, so two workers polling concurrently never both receive the
// same job.
type Store interface {
	Enqueue(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)

	// Dequeue claims one due job (status queued, or running with an
	// expired lease) for workerID, extending its lease by leaseDuration,
	// and returns (nil, nil) if no job is available.
	Dequeue(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error)

	// Complete marks a job succeeded.
	Complete(ctx context.Context, jobID string) error

	// Fail records errMsg on the job. If retry is true and the job has
	// attempts remaining, it is returned to queued status for another
	// worker to pick up; otherwise it is marked failed terminally.
	Fail(ctx context.Context, jobID string, errMsg string, retry bool) error
}
