package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerConfig configures a Worker's polling and concurrency behavior.
type WorkerConfig struct {
	// WorkerID identifies this worker for lease ownership. Defaults to a
	// random UUID.
	WorkerID string

	// PollInterval is how often the worker checks for a due job; it claims
	// at most one job per check. Defaults to 1 second.
	PollInterval time.Duration

	// LeaseDuration is how long a claimed job's lease is held before
	// another worker may reclaim it on timeout. Defaults to 5 minutes.
	LeaseDuration time.Duration

	// Concurrency is the maximum number of jobs this worker runs at
	// once. Defaults to 4.
	Concurrency int

	Logger *slog.Logger
}

func (c *WorkerConfig) setDefaults() {
	if c.WorkerID == "" {
		c.WorkerID = uuid.NewString()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 5 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Worker polls a Store, dequeues due jobs, and dispatches them to the
// Handler registered for their Type. Unhandled job types fail the job
// immediately without retry, since no amount of retrying will register a
// handler.
type Worker struct {
	store    Store
	handlers map[Type]Handler
	config   WorkerConfig

	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// NewWorker returns a Worker bound to store and the given handler map.
func NewWorker(store Store, handlers map[Type]Handler, config WorkerConfig) *Worker {
	config.setDefaults()
	return &Worker{
		store:    store,
		handlers: handlers,
		config:   config,
		sem:      make(chan struct{}, config.Concurrency),
	}
}

// Start begins the poll loop in a background goroutine and returns
// immediately. Calling Start on an already-running Worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.config.Logger.Info("starting job worker", "worker_id", w.config.WorkerID, "concurrency", w.config.Concurrency)

	w.wg.Add(1)
	go w.pollLoop(ctx)
}

// Stop cancels the poll loop and waits for in-flight jobs to finish or ctx
// to expire, whichever comes first.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.config.Logger.Info("job worker stopped", "worker_id", w.config.WorkerID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tryDequeue(ctx)
		}
	}
}

func (w *Worker) tryDequeue(ctx context.Context) {
	select {
	case w.sem <- struct{}{}:
	default:
		return // at capacity, try again next tick
	}

	job, err := w.store.Dequeue(ctx, w.config.WorkerID, w.config.LeaseDuration)
	if err != nil {
		<-w.sem
		w.config.Logger.Error("dequeue failed", "error", err)
		return
	}
	if job == nil {
		<-w.sem
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.run(ctx, job)
	}()
}

func (w *Worker) run(ctx context.Context, job *Job) {
	logger := w.config.Logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempt)
	logger.Info("running job")

	handler, ok := w.handlers[job.Type]
	if !ok {
		logger.Error("no handler registered for job type")
		if err := w.store.Fail(ctx, job.ID, fmt.Sprintf("no handler for job type %q", job.Type), false); err != nil {
			logger.Error("failed to record missing-handler failure", "error", err)
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, w.config.LeaseDuration)
	defer cancel()

	if err := handler.Handle(runCtx, job); err != nil {
		logger.Error("job failed", "error", err)
		retry := job.Attempt < job.MaxAttempts
		if failErr := w.store.Fail(ctx, job.ID, err.Error(), retry); failErr != nil {
			logger.Error("failed to record job failure", "error", failErr)
		}
		return
	}

	if err := w.store.Complete(ctx, job.ID); err != nil {
		logger.Error("failed to mark job complete", "error", err)
	}
}
