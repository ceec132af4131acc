package providers

import (
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogforge/core/internal/completion"
)

func TestNewOpenAIProvider_BlankKeyYieldsUnconfiguredClient(t *testing.T) {
	p := NewOpenAIProvider("", 0, 0)
	assert.Nil(t, p.client)
	assert.Equal(t, "openai", p.Name())

	_, err := p.Complete(t.Context(), &completion.Request{})
	require.Error(t, err)
}

func TestNewOpenAIProvider_WithKeyConfiguresClient(t *testing.T) {
	p := NewOpenAIProvider("sk-test", 5, 2*time.Second)
	assert.NotNil(t, p.client)
	assert.Equal(t, 5, p.maxRetries)
	assert.Equal(t, 2*time.Second, p.retryDelay)
}

func TestOpenAIProvider_Supports(t *testing.T) {
	p := NewOpenAIProvider("sk-test", 0, 0)
	assert.True(t, p.Supports("gpt-4o"))
	assert.True(t, p.Supports("gpt-3.5-turbo"))
	assert.False(t, p.Supports("claude-sonnet-4-20250514"))
	assert.False(t, p.Supports(""))
}

func TestOpenAIProvider_ConvertMessages(t *testing.T) {
	p := NewOpenAIProvider("sk-test", 0, 0)

	out := p.convertMessages("be concise", []completion.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	assert.Equal(t, "be concise", out[0].Content)
	assert.Equal(t, "hello", out[1].Content)
}

func TestOpenAIProvider_ConvertMessagesNoSystem(t *testing.T) {
	p := NewOpenAIProvider("sk-test", 0, 0)
	out := p.convertMessages("", []completion.Message{{Role: "user", Content: "hi"}})
	require.Len(t, out, 1)
}

func TestOpenAIProvider_IsRetryableError(t *testing.T) {
	p := NewOpenAIProvider("sk-test", 0, 0)

	assert.False(t, p.isRetryableError(nil))
	assert.False(t, p.isRetryableError(errors.New("boom")))

	apiErr := &openai.APIError{HTTPStatusCode: 429}
	assert.True(t, p.isRetryableError(apiErr))

	apiErr = &openai.APIError{HTTPStatusCode: 401}
	assert.False(t, p.isRetryableError(apiErr))
}

func TestOpenAIProvider_WrapError(t *testing.T) {
	p := NewOpenAIProvider("sk-test", 0, 0)

	apiErr := &openai.APIError{HTTPStatusCode: 503, Message: "upstream unavailable"}
	wrapped := p.wrapError(apiErr)

	var perr *completion.ProviderError
	require.ErrorAs(t, wrapped, &perr)
	assert.Equal(t, "openai", perr.Provider)
	assert.Equal(t, 503, perr.Status)
	assert.Equal(t, completion.FailoverServerError, perr.Reason)
}

func TestOpenAIProvider_WrapErrorNil(t *testing.T) {
	p := NewOpenAIProvider("sk-test", 0, 0)
	assert.NoError(t, p.wrapError(nil))
}
