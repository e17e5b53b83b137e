package llm

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter counts tokens of text for a model. Counts are for logging
// only.
type TokenCounter interface {
	Count(model, text string) int
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// EstimateCounter is a TokenCounter that never loads an encoding.
type EstimateCounter struct{}

// Count implements TokenCounter.
func (EstimateCounter) Count(_, text string) int { return EstimateTokens(text) }

type encoder interface {
	EncodeOrdinary(text string) []int
}

// TiktokenCounter counts with the BPE encoding of the model family. Models
// tiktoken does not know use cl100k_base; when no encoding can be loaded
// the count falls back to EstimateTokens.
type TiktokenCounter struct {
	mu        sync.Mutex
	encodings map[string]encoder
	load      func(model string) (encoder, error)
}

// NewTiktokenCounter creates a TiktokenCounter. Encodings are loaded lazily
// on first use per model.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		encodings: make(map[string]encoder),
		load:      loadTiktoken,
	}
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(model, text string) int {
	enc := c.encoding(model)
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.EncodeOrdinary(text))
}

func (c *TiktokenCounter) encoding(model string) encoder {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodings[model]; ok {
		return enc
	}
	enc, err := c.load(model)
	if err != nil {
		zap.L().Debug("llm: tokenizer unavailable, estimating",
			zap.String("model", model),
			zap.Error(err),
		)
		enc = nil
	}
	// Failures are cached too so a missing encoding is not re-fetched per call.
	c.encodings[model] = enc
	return enc
}

func loadTiktoken(model string) (encoder, error) {
	if isReasoningModel(model) {
		if enc, err := tiktoken.GetEncoding(tiktoken.MODEL_O200K_BASE); err == nil {
			return enc, nil
		}
	}
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
