package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestExtractionResult_JSONRoundTrip(t *testing.T) {
	var fields FieldResults
	fields.Set("nome", FieldResult{
		Value:      strPtr("JOANA D'ARC"),
		Confidence: 0.92,
		Rationale:  "name printed under the photo",
		Source:     SourceLLM,
		Details:    map[string]any{"zone": "TOP-LEFT"},
	})
	fields.Set("inscricao", Unresolved("field not returned by model", nil))

	orig := ExtractionResult{
		Label:  "carteira_oab",
		Fields: fields,
		Meta: ExtractionMeta{
			TimingsSeconds: Timings{Extract: 0.01, LLM: 1.5, Total: 1.52},
			CacheKey:       "extract:carteira_oab:abc:def",
			PDFHash:        "abc",
			SchemaHash:     "def",
			Trace:          Trace{LLMResolved: []string{"nome"}, Unresolved: []string{"inscricao"}},
			DocMeta:        DocumentMeta{Source: "oab_1.pdf", Engine: "ledongthuc/pdf", Pages: 1, LineCount: 4},
			Tokens:         TokenUsage{Input: 900, Output: 80},
			Model:          "gpt-5-mini",
		},
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var got ExtractionResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, orig, got)
	assert.Equal(t, []string{"nome", "inscricao"}, got.Fields.Keys())
}

func TestFieldResult_NullValueEncoding(t *testing.T) {
	data, err := json.Marshal(Unresolved("no value", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null,"confidence":0,"rationale":"no value","source":"unresolved","details":{}}`, string(data))
}

func TestFieldResult_Resolved(t *testing.T) {
	assert.True(t, FieldResult{Value: strPtr("x")}.Resolved())
	assert.False(t, FieldResult{Value: strPtr("")}.Resolved())
	assert.False(t, FieldResult{}.Resolved())
}

func TestTokenUsageAdd(t *testing.T) {
	u := TokenUsage{Input: 10, Output: 2}
	u.Add(TokenUsage{Input: 5, Output: 3})
	assert.Equal(t, TokenUsage{Input: 15, Output: 5}, u)
}

func TestRunStatusValues(t *testing.T) {
	assert.Equal(t, RunStatus("running"), RunStatusRunning)
	assert.Equal(t, RunStatus("complete"), RunStatusComplete)
	assert.Equal(t, RunStatus("failed"), RunStatusFailed)
}
