package jobs

import "context"

// Handler processes one job Type. Handle must be idempotent: a lease can
// expire mid-execution (worker crash, long GC pause) and another worker
// will pick the same job back up as its next attempt.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job) error { return f(ctx, job) }
