// Package completion is the chained LLM provider abstraction behind the
// prompt/message step handlers: a Chain holds an ordered list of Providers,
// each claiming the models it can serve, and dispatches a Request to the
// first match.
package completion

import "context"

// Message is one turn in the conversation sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Request is a provider-agnostic completion request built by a step
// handler from a dialog's accumulated message history.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// Chunk is one piece of a streaming completion response. A Chunk with
// Done set to true is always the last value sent on a Chunk channel,
// whether or not Error is also set.
type Chunk struct {
	Text         string
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// Provider is one concrete LLM backend.
type Provider interface {
	// Name identifies the provider for logging and error messages.
	Name() string

	// Supports reports whether this provider can serve the given model
	// identifier, as written on the step or template (registry model
	// aliases are not resolved before this call).
	Supports(model string) bool

	// Complete streams the response to req. The returned channel is
	// always closed by the provider, with a final Chunk{Done: true}
	// (carrying Error if the stream ended abnormally) sent last.
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)
}
