package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-extract/internal/config"
	"github.com/sells-group/doc-extract/pkg/anthropic"
	"github.com/sells-group/doc-extract/pkg/openai"
)

type mockOpenAI struct {
	mock.Mock
}

func (m *mockOpenAI) CreateChatCompletion(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.ChatResponse), args.Error(1)
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func testRequest() Request {
	return Request{
		System:     "sys",
		User:       "user",
		SchemaName: ResponseSchemaName,
		Schema:     ResponseSchema(twoFieldSchema()),
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	client := &mockOpenAI{}
	var sent openai.ChatRequest
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(openai.ChatRequest)
	}).Return(&openai.ChatResponse{
		Content: `{"nome":{"value":"A"}}`,
		Model:   "gpt-5-mini-2025-08-07",
		Usage:   openai.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}, nil)

	p := NewOpenAIProvider(client, config.LLMConfig{Model: "gpt-5-mini", MaxOutputTokens: 2000})
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-5-mini", p.Model())

	resp, err := p.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"nome":{"value":"A"}}`, resp.Text)
	assert.Equal(t, "gpt-5-mini-2025-08-07", resp.Model)
	assert.Equal(t, 100, resp.Usage.Input)
	assert.Equal(t, 20, resp.Usage.Output)

	assert.Equal(t, "sys", sent.System)
	assert.Equal(t, "user", sent.User)
	assert.Equal(t, int64(2000), sent.MaxTokens)
	assert.Nil(t, sent.Temperature, "reasoning models take the default temperature")
	require.NotNil(t, sent.JSONSchema)
	assert.True(t, sent.JSONSchema.Strict)
	assert.Equal(t, ResponseSchemaName, sent.JSONSchema.Name)
}

func TestOpenAIProvider_TemperatureForChatModels(t *testing.T) {
	client := &mockOpenAI{}
	var sent openai.ChatRequest
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(openai.ChatRequest)
	}).Return(&openai.ChatResponse{Content: "{}"}, nil)

	p := NewOpenAIProvider(client, config.LLMConfig{Model: "gpt-4o-mini", Temperature: 0.2})
	_, err := p.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, sent.Temperature)
	assert.Equal(t, 0.2, *sent.Temperature)
}

func TestOpenAIProvider_RefusalAndErrors(t *testing.T) {
	client := &mockOpenAI{}
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(&openai.ChatResponse{Refusal: "cannot help"}, nil).Once()
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	p := NewOpenAIProvider(client, config.LLMConfig{Model: "gpt-5-mini"})
	_, err := p.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot help")

	_, err = p.Complete(context.Background(), testRequest())
	assert.EqualError(t, err, "timeout")
}

func TestAnthropicProvider_Complete(t *testing.T) {
	client := &mockAnthropic{}
	var sent anthropic.MessageRequest
	client.On("CreateMessage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(anthropic.MessageRequest)
	}).Return(&anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"nome":{"value":"A"}}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 300, OutputTokens: 40},
	}, nil)

	p := NewAnthropicProvider(client, config.LLMConfig{Model: "claude-haiku-4-5-20251001", MaxOutputTokens: 1000})
	assert.Equal(t, "anthropic", p.Name())

	resp, err := p.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"nome":{"value":"A"}}`, resp.Text)
	assert.Equal(t, 300, resp.Usage.Input)

	require.Len(t, sent.System, 1)
	assert.Equal(t, "sys", sent.System[0].Text)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "user", sent.Messages[0].Role)
	assert.Contains(t, sent.Messages[0].Content, "user\n\nThe JSON object must validate against this JSON Schema:")
	assert.Contains(t, sent.Messages[0].Content, `"additionalProperties": false`)
	assert.Equal(t, int64(1000), sent.MaxTokens)
	require.NotNil(t, sent.Temperature)
}

func TestAnthropicProvider_Error(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	p := NewAnthropicProvider(client, config.LLMConfig{Model: "claude-haiku-4-5-20251001"})
	_, err := p.Complete(context.Background(), testRequest())
	assert.EqualError(t, err, "overloaded")
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{Provider: "openai", Model: "gpt-5-mini"})
	require.NoError(t, err)
	assert.Nil(t, p, "no key means no provider")

	p, err = NewProvider(config.LLMConfig{Provider: "openai", Model: "gpt-5-mini", OpenAIKey: "sk", TimeoutSecs: 5})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	p, err = NewProvider(config.LLMConfig{Provider: "anthropic", Model: "claude-haiku-4-5-20251001", AnthropicKey: "sk-ant"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, p)

	_, err = NewProvider(config.LLMConfig{Provider: "gemini", OpenAIKey: "sk"})
	assert.Error(t, err)
}
