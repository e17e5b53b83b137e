// Package cost estimates the spend of language-model calls.
package cost

import "github.com/sells-group/doc-extract/internal/model"

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to pricing.
type Rates map[string]ModelRate

// Calculator computes costs for token usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator. Entries in overrides replace the
// defaults for the same model.
func NewCalculator(overrides Rates) *Calculator {
	rates := DefaultRates()
	for name, r := range overrides {
		rates[name] = r
	}
	return &Calculator{rates: rates}
}

// Tokens computes the cost of usage on modelName. ok is false for a model
// without a rate.
func (c *Calculator) Tokens(modelName string, usage model.TokenUsage) (float64, bool) {
	rate, ok := c.rates[modelName]
	if !ok {
		return 0, false
	}
	in := (float64(usage.Input) / 1e6) * rate.Input
	out := (float64(usage.Output) / 1e6) * rate.Output
	return in + out, true
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"gpt-5-mini":                 {Input: 0.25, Output: 2.00},
		"gpt-5":                      {Input: 1.25, Output: 10.00},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
		"gpt-4.1-mini":               {Input: 0.40, Output: 1.60},
		"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	}
}
