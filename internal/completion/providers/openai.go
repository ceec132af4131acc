package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dialogforge/core/internal/completion"
)

// openaiModels lists the model identifiers this provider claims.
var openaiModels = map[string]bool{
	"gpt-4o":        true,
	"gpt-4-turbo":   true,
	"gpt-3.5-turbo": true,
	"gpt-4":         true,
	"gpt-4o-mini":   true,
}

// OpenAIProvider streams text completions through OpenAI's chat completion
// API. Like AnthropicProvider, it is trimmed to plain text: no tool calls,
// no vision attachments.
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
}

// NewOpenAIProvider builds an OpenAIProvider. A blank apiKey yields a
// provider whose Complete always fails, mirroring the teacher's
// fail-at-call-time behavior for a missing key rather than erroring at
// construction.
func NewOpenAIProvider(apiKey string, maxRetries int, retryDelay time.Duration) *OpenAIProvider {
	p := &OpenAIProvider{BaseProvider: NewBaseProvider("openai", maxRetries, retryDelay)}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

// Supports reports whether model is one of the known GPT model IDs.
func (p *OpenAIProvider) Supports(model string) bool {
	return openaiModels[model]
}

func (p *OpenAIProvider) convertMessages(system string, messages []completion.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Complete streams a text completion. The returned channel is always
// closed, with a final Chunk{Done: true} sent last.
func (p *OpenAIProvider) Complete(ctx context.Context, req *completion.Request) (<-chan *completion.Chunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: p.convertMessages(req.System, req.Messages),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, p.isRetryableError, func() error {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, p.wrapError(err)
	}

	chunks := make(chan *completion.Chunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *completion.Chunk) {
	defer close(chunks)
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			chunks <- &completion.Chunk{Done: true, Error: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				chunks <- &completion.Chunk{Done: true}
				return
			}
			chunks <- &completion.Chunk{Done: true, Error: p.wrapError(err)}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			chunks <- &completion.Chunk{Text: text}
		}
	}
}

func (p *OpenAIProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return completion.ReasonFromStatus(apiErr.HTTPStatusCode).IsRetryable()
	}
	return false
}

func (p *OpenAIProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	return &completion.ProviderError{
		Provider: p.Name(),
		Status:   status,
		Reason:   completion.ReasonFromStatus(status),
		Err:      fmt.Errorf("openai: %w", err),
	}
}
