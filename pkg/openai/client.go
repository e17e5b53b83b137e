// Package openai is a thin wrapper around the OpenAI Chat Completions API
// with structured (JSON Schema) output.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rotisserie/eris"
)

// Client defines the OpenAI API operations used by the extractor.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is our own request type for CreateChatCompletion.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64
	// JSONSchema, when set, requests structured output conforming to the schema.
	JSONSchema *JSONSchemaFormat
}

// JSONSchemaFormat describes a json_schema response format.
type JSONSchemaFormat struct {
	Name   string
	Schema map[string]any
	Strict bool
}

// ChatResponse is our own response type from CreateChatCompletion.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	Refusal      string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

// Config holds configuration for the client.
type Config struct {
	APIKey     string
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional
	MaxRetries int          // SDK transport retries; 0 disables
}

// sdkClient implements Client using the official openai-go SDK.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new OpenAI client backed by the SDK.
func NewClient(cfg Config) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := toSDKParams(req)

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(mapError(err), "openai: create chat completion")
	}
	return fromSDKCompletion(completion), nil
}

func toSDKParams(req ChatRequest) sdk.ChatCompletionNewParams {
	var msgs []sdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}
	msgs = append(msgs, sdk.UserMessage(req.User))

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.JSONSchema != nil {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{
				JSONSchema: sdk.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.JSONSchema.Name,
					Schema: req.JSONSchema.Schema,
					Strict: sdk.Bool(req.JSONSchema.Strict),
				},
			},
		}
	}
	return params
}

func fromSDKCompletion(c *sdk.ChatCompletion) *ChatResponse {
	resp := &ChatResponse{
		ID:    c.ID,
		Model: c.Model,
		Usage: TokenUsage{
			InputTokens:  c.Usage.PromptTokens,
			OutputTokens: c.Usage.CompletionTokens,
		},
	}
	if len(c.Choices) > 0 {
		choice := c.Choices[0]
		resp.Content = choice.Message.Content
		resp.Refusal = choice.Message.Refusal
		resp.FinishReason = choice.FinishReason
	}
	return resp
}

func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return &APIError{StatusCode: apiErr.StatusCode, Message: msg}
	}
	return err
}
