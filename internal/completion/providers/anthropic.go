package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/dialogforge/core/internal/completion"
)

// anthropicModels lists the model identifiers this provider claims.
var anthropicModels = map[string]bool{
	"claude-sonnet-4-20250514":   true,
	"claude-opus-4-20250514":     true,
	"claude-3-5-sonnet-20241022": true,
	"claude-3-5-haiku-20241022":  true,
	"claude-3-haiku-20240307":    true,
}

// AnthropicProvider streams text completions through Anthropic's Messages
// API. Unlike the teacher's equivalent, it carries no tool-calling or
// extended-thinking support: step handlers in this domain only ever need
// plain assistant text.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider validates config and builds the SDK client.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
	}, nil
}

// Supports reports whether model is one of the known Claude model IDs, or
// empty (an empty model is served with the provider's default model).
func (p *AnthropicProvider) Supports(model string) bool {
	if model == "" {
		return true
	}
	return anthropicModels[model]
}

func (p *AnthropicProvider) model(req *completion.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) maxTokens(req *completion.Request) int64 {
	if req.MaxTokens > 0 {
		return int64(req.MaxTokens)
	}
	return 4096
}

func (p *AnthropicProvider) convertMessages(messages []completion.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// Complete streams a text completion. The returned channel is always
// closed, with a final Chunk{Done: true} sent last.
func (p *AnthropicProvider) Complete(ctx context.Context, req *completion.Request) (<-chan *completion.Chunk, error) {
	chunks := make(chan *completion.Chunk)

	go func() {
		defer close(chunks)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model(req)),
			Messages:  p.convertMessages(req.Messages),
			MaxTokens: p.maxTokens(req),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
		}

		var emitted bool
		var pending []*completion.Chunk
		err := p.Retry(ctx, p.isRetryableError, func() error {
			emitted = false
			pending = nil
			stream := p.client.Messages.NewStreaming(ctx, params)
			pending, emitted = p.collectStream(stream)
			if !emitted && len(pending) == 1 && pending[0].Error != nil {
				return pending[0].Error
			}
			return nil
		})

		for _, c := range pending {
			chunks <- c
		}
		if err != nil && len(pending) == 0 {
			chunks <- &completion.Chunk{Done: true, Error: p.wrapError(err)}
		}
	}()

	return chunks, nil
}

// collectStream drains stream into a slice of chunks, reporting whether any
// text was emitted before the stream ended. A stream that fails before
// producing any text is safe to retry in full; one that fails partway
// through has already sent output downstream and must not be repeated.
func (p *AnthropicProvider) collectStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) ([]*completion.Chunk, bool) {
	var out []*completion.Chunk
	var inputTokens, outputTokens int
	var emitted bool

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				out = append(out, &completion.Chunk{Text: delta.Text})
				emitted = true
			}
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
		case "message_stop":
			out = append(out, &completion.Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			return out, emitted
		case "error":
			out = append(out, &completion.Chunk{Done: true, Error: p.wrapError(errors.New("anthropic stream error"))})
			return out, emitted
		}
	}

	if err := stream.Err(); err != nil {
		out = append(out, &completion.Chunk{Done: true, Error: p.wrapError(err)})
	}
	return out, emitted
}

func (p *AnthropicProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return completion.ReasonFromStatus(apiErr.StatusCode).IsRetryable()
	}
	msg := err.Error()
	for _, s := range []string{"rate_limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (p *AnthropicProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return &completion.ProviderError{
		Provider: p.Name(),
		Status:   status,
		Reason:   completion.ReasonFromStatus(status),
		Err:      fmt.Errorf("anthropic: %w", err),
	}
}
