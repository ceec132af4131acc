package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoSupportingProvider is returned when no registered provider claims a
// request's model.
var ErrNoSupportingProvider = errors.New("completion: no provider supports the requested model")

// Chain dispatches a Request to the first registered Provider that claims
// the requested model, mirroring the teacher's FailoverOrchestrator shape
// but choosing providers by capability instead of by health/circuit state:
// this system has exactly one provider per model family, so there is
// nothing to fail over between, only to select between.
type Chain struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewChain returns an empty Chain. Register providers with Register.
func NewChain() *Chain {
	return &Chain{}
}

// Register appends p to the chain. Registration order is dispatch
// priority: the first provider whose Supports(model) returns true wins.
func (c *Chain) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, p)
}

// Complete finds the first provider supporting req.Model and delegates to
// it, returning ErrNoSupportingProvider if none match.
func (c *Chain) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	c.mu.RLock()
	providers := make([]Provider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		if p.Supports(req.Model) {
			return p.Complete(ctx, req)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoSupportingProvider, req.Model)
}
