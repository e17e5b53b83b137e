package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-extract/internal/config"
	"github.com/sells-group/doc-extract/internal/model"
	"github.com/sells-group/doc-extract/pkg/anthropic"
	"github.com/sells-group/doc-extract/pkg/openai"
)

// Request is a single structured-output completion.
type Request struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// Response is the raw model answer.
type Response struct {
	Text  string
	Model string
	Usage model.TokenUsage
}

// Provider issues one completion against a model API.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewProvider builds the provider selected by cfg. It returns nil and no
// error when the provider's API key is not configured.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey() == "" {
		return nil, nil
	}

	hc := &http.Client{}
	if cfg.TimeoutSecs > 0 {
		hc.Timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}

	switch cfg.Provider {
	case "openai", "":
		client := openai.NewClient(openai.Config{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: hc,
		})
		return NewOpenAIProvider(client, cfg), nil
	case "anthropic":
		client := anthropic.NewClient(cfg.AnthropicKey,
			anthropic.WithBaseURL(cfg.AnthropicBaseURL),
			anthropic.WithHTTPClient(hc),
			anthropic.WithMaxRetries(0),
		)
		return NewAnthropicProvider(client, cfg), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// OpenAIProvider requests strict JSON Schema output from OpenAI.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewOpenAIProvider wraps an OpenAI client.
func NewOpenAIProvider(client openai.Client, cfg config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{
		client:      client,
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxOutputTokens),
		temperature: cfg.Temperature,
	}
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	chat := openai.ChatRequest{
		Model:     p.model,
		System:    req.System,
		User:      req.User,
		MaxTokens: p.maxTokens,
		JSONSchema: &openai.JSONSchemaFormat{
			Name:   req.SchemaName,
			Schema: req.Schema,
			Strict: true,
		},
	}
	if !isReasoningModel(p.model) {
		t := p.temperature
		chat.Temperature = &t
	}

	resp, err := p.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, eris.Errorf("llm: openai refused: %s", resp.Refusal)
	}

	return &Response{
		Text:  resp.Content,
		Model: resp.Model,
		Usage: model.TokenUsage{
			Input:  int(resp.Usage.InputTokens),
			Output: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// isReasoningModel reports OpenAI reasoning models. They only accept the
// default temperature and use the o200k_base encoding.
func isReasoningModel(m string) bool {
	for _, prefix := range []string{"gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// AnthropicProvider asks Claude for JSON matching a schema embedded in the
// prompt.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider wraps an Anthropic client.
func NewAnthropicProvider(client anthropic.Client, cfg config.LLMConfig) *AnthropicProvider {
	return &AnthropicProvider{
		client:      client,
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxOutputTokens),
		temperature: cfg.Temperature,
	}
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	schemaJSON, err := json.MarshalIndent(req.Schema, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "llm: encode response schema")
	}

	temp := p.temperature
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    []anthropic.SystemBlock{{Text: req.System}},
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: req.User + schemaInstruction(string(schemaJSON)),
		}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:  resp.Text(),
		Model: resp.Model,
		Usage: model.TokenUsage{
			Input:  int(resp.Usage.InputTokens),
			Output: int(resp.Usage.OutputTokens),
		},
	}, nil
}
