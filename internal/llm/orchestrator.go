// Package llm turns layout text into field values with a single
// structured-output model call.
package llm

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/cost"
	"github.com/sells-group/doc-extract/internal/model"
)

// Extraction is the outcome of ExtractFields.
type Extraction struct {
	// Fields holds the fields the model answered, in schema order. Values may
	// be nil. On failure every schema field is present and unresolved.
	Fields model.FieldResults
	Usage  model.TokenUsage
	Model  string
	// Err is the failure reason, empty on success.
	Err Reason
}

// Failed reports whether the call fell back to unresolved fields.
func (e Extraction) Failed() bool { return e.Err != "" }

// Orchestrator runs the model call for one document.
type Orchestrator struct {
	provider Provider
	counter  TokenCounter
	pricer   *cost.Calculator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTokenCounter overrides the tokenizer used for prompt accounting.
func WithTokenCounter(c TokenCounter) Option {
	return func(o *Orchestrator) { o.counter = c }
}

// WithCostCalculator adds an estimated spend to completion logs.
func WithCostCalculator(c *cost.Calculator) Option {
	return func(o *Orchestrator) { o.pricer = c }
}

// New creates an Orchestrator. A nil provider means no API key is configured;
// every call then falls back with ReasonAPIKeyMissing.
func New(provider Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{provider: provider}
	for _, opt := range opts {
		opt(o)
	}
	if o.counter == nil {
		o.counter = NewTiktokenCounter()
	}
	return o
}

// Configured reports whether a provider is available.
func (o *Orchestrator) Configured() bool { return o.provider != nil }

// Model returns the configured model name, or "" without a provider.
func (o *Orchestrator) Model() string {
	if o.provider == nil {
		return ""
	}
	return o.provider.Model()
}

// ExtractFields asks the model for every field of schema given the layout
// text. It makes exactly one provider call and never fails: any error yields
// an Extraction whose fields are all unresolved.
func (o *Orchestrator) ExtractFields(ctx context.Context, label string, schema model.ExtractionSchema, layout string) Extraction {
	if o.provider == nil {
		zap.L().Error("llm: api key not configured")
		return fallback(schema, &ProviderError{Provider: "none", Reason: ReasonAPIKeyMissing}, "")
	}

	name, modelName := o.provider.Name(), o.provider.Model()
	system := SystemPrompt(label)
	user := UserPrompt(schema, layout)

	systemTokens := o.counter.Count(modelName, system)
	userTokens := o.counter.Count(modelName, user)
	zap.L().Info("llm: prompt tokens",
		zap.String("provider", name),
		zap.String("model", modelName),
		zap.Int("total", systemTokens+userTokens),
		zap.Int("system", systemTokens),
		zap.Int("user", userTokens),
	)

	start := time.Now()
	resp, err := o.provider.Complete(ctx, Request{
		System:     system,
		User:       user,
		SchemaName: ResponseSchemaName,
		Schema:     ResponseSchema(schema),
	})
	if err != nil {
		return fallback(schema, &ProviderError{Provider: name, Reason: ReasonProviderError, Err: err}, modelName)
	}
	if resp.Model != "" {
		modelName = resp.Model
	}
	if strings.TrimSpace(resp.Text) == "" {
		return fallback(schema, &ProviderError{Provider: name, Reason: ReasonEmptyResponse}, modelName)
	}

	parsed, err := parseResponse(resp.Text, schema)
	if err != nil {
		return fallback(schema, &ProviderError{Provider: name, Reason: ReasonMalformedResponse, Err: err}, modelName)
	}

	usage := resp.Usage
	if usage.Input == 0 && usage.Output == 0 {
		usage = model.TokenUsage{
			Input:  systemTokens + userTokens,
			Output: o.counter.Count(modelName, resp.Text),
		}
	}

	var fields model.FieldResults
	for field := range schema.All() {
		p, ok := parsed[field]
		if !ok || p == nil {
			continue
		}
		fields.Set(field, toFieldResult(p, name))
	}

	logFields := []zap.Field{
		zap.String("provider", name),
		zap.String("model", modelName),
		zap.Int("fields_returned", fields.Len()),
		zap.Int("fields_requested", schema.Len()),
		zap.Int("input_tokens", usage.Input),
		zap.Int("output_tokens", usage.Output),
		zap.Duration("elapsed", time.Since(start)),
	}
	if usd, ok := o.estimateCost(usage); ok {
		logFields = append(logFields, zap.Float64("estimated_cost_usd", usd))
	}
	zap.L().Info("llm: extraction complete", logFields...)

	return Extraction{Fields: fields, Usage: usage, Model: modelName}
}

// estimateCost prices usage at the configured model's rate. Responses may
// name a dated snapshot, so the configured name is used.
func (o *Orchestrator) estimateCost(usage model.TokenUsage) (float64, bool) {
	if o.pricer == nil {
		return 0, false
	}
	return o.pricer.Tokens(o.provider.Model(), usage)
}

func toFieldResult(p *fieldPayload, provider string) model.FieldResult {
	var value *string
	if p.Value != nil {
		if v := strings.TrimSpace(*p.Value); v != "" {
			value = &v
		}
	}

	confidence := 0.0
	if p.Confidence != nil {
		confidence = clamp01(*p.Confidence)
	}

	rationale := ""
	if p.Rationale != nil {
		rationale = *p.Rationale
	}

	details := make(map[string]any, len(p.Details)+1)
	for k, v := range p.Details {
		details[k] = v
	}
	details["provider"] = provider

	return model.FieldResult{
		Value:      value,
		Confidence: confidence,
		Rationale:  rationale,
		Source:     model.SourceLLM,
		Details:    details,
	}
}

// fallback marks every schema field unresolved with the failure reason.
func fallback(schema model.ExtractionSchema, perr *ProviderError, modelName string) Extraction {
	zap.L().Error("llm: extraction failed, returning unresolved fields",
		zap.String("provider", perr.Provider),
		zap.String("reason", string(perr.Reason)),
		zap.Error(perr),
	)

	var fields model.FieldResults
	for name := range schema.All() {
		fields.Set(name, model.Unresolved(
			"LLM extraction failed: "+string(perr.Reason),
			map[string]any{"error": string(perr.Reason)},
		))
	}
	return Extraction{Fields: fields, Model: modelName, Err: perr.Reason}
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
