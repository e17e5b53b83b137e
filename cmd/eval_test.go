package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-extract/internal/config"
	"github.com/sells-group/doc-extract/internal/document"
	"github.com/sells-group/doc-extract/internal/evaluation"
	"github.com/sells-group/doc-extract/internal/model"
	"github.com/sells-group/doc-extract/internal/pipeline"
	"github.com/sells-group/doc-extract/internal/store"
)

// echoRunner answers every field with the field's description.
type echoRunner struct{}

func (echoRunner) Run(_ context.Context, req model.ExtractionRequest, _ pipeline.RunOptions) (*model.ExtractionResult, error) {
	if strings.HasPrefix(req.PDFPath, "missing") {
		return nil, &document.PathError{Path: req.PDFPath}
	}
	var fields model.FieldResults
	for name, desc := range req.Schema.All() {
		v := desc
		fields.Set(name, model.FieldResult{Value: &v, Confidence: 1, Source: model.SourceLLM, Details: map[string]any{}})
	}
	return &model.ExtractionResult{
		Label:  req.Label,
		Fields: fields,
		Meta:   model.ExtractionMeta{Tokens: model.TokenUsage{Input: 10, Output: 2}},
	}, nil
}

func evalItems() []model.BatchItem {
	return []model.BatchItem{
		{Label: "a", Schema: model.SchemaOf("nome", "Joana"), PDFPath: "one.pdf", GT: map[string]any{"nome": "joana"}},
		{Label: "a", Schema: model.SchemaOf("nome", "Pedro"), PDFPath: "two.pdf", GT: map[string]any{"nome": "Paulo"}},
		{Label: "a", Schema: model.SchemaOf("nome", "x"), PDFPath: "missing.pdf", GT: map[string]any{"nome": "x"}},
	}
}

func newCmdStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRunEvaluation_RecordsRun(t *testing.T) {
	ctx := context.Background()
	st := newCmdStore(t)

	report, runID, err := runEvaluation(ctx, echoRunner{}, st, "golden.yaml", evalItems(), 2, true)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	assert.Equal(t, "golden.yaml", report.Dataset)
	assert.Equal(t, 3, report.Summary.Counters.ItemsReceived)
	assert.Equal(t, 2, report.Summary.Counters.DocsEvaluated)
	assert.Equal(t, 1, report.Summary.Counters.DocsFailed)
	assert.Equal(t, 1, report.Summary.Metrics.FieldsCorrect)
	assert.Equal(t, 2, report.Summary.Metrics.FieldsTotal)

	run, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "golden.yaml", run.Dataset)
	require.NotNil(t, run.Summary)
	assert.InDelta(t, 0.5, run.Summary.AccuracyOverall, 1e-9)
	assert.Equal(t, model.TokenUsage{Input: 20, Output: 4}, run.Summary.Tokens)
}

func TestRunEvaluation_NoStore(t *testing.T) {
	report, runID, err := runEvaluation(context.Background(), echoRunner{}, nil, "d.json", evalItems()[:1], 1, false)
	require.NoError(t, err)
	assert.Empty(t, runID)
	assert.Equal(t, "d.json", report.Dataset)
	assert.Equal(t, 1, report.Summary.Metrics.FieldsCorrect)
}

func TestRunEvaluation_EmptyDatasetFailsRun(t *testing.T) {
	ctx := context.Background()
	st := newCmdStore(t)

	_, _, err := runEvaluation(ctx, echoRunner{}, st, "empty.json", nil, 1, true)
	require.Error(t, err)

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "dataset is empty")
}

func TestFormatSummary(t *testing.T) {
	acc := 0.75
	avg := 120.4
	s := evaluation.Summary{
		Metrics: evaluation.Metrics{
			FieldsTotal:     4,
			FieldsCorrect:   3,
			AccuracyOverall: &acc,
			TimeAvgMS:       &avg,
		},
		Counters:  evaluation.Counters{ItemsReceived: 2, DocsEvaluated: 1, DocsWithGT: 1, DocsWithoutGT: 1},
		CacheHits: 1,
		Tokens:    model.TokenUsage{Input: 100, Output: 20},
	}

	var buf bytes.Buffer
	formatSummary(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "Items received:")
	assert.Contains(t, out, "3/4")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "120ms")
	assert.Contains(t, out, "100 in / 20 out")
}

func TestEstimateCost(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })
	cfg = &config.Config{Pricing: map[string]config.ModelPricing{
		"my-model": {Input: 2, Output: 8},
	}}

	usd, ok := estimateCost("my-model", model.TokenUsage{Input: 500000, Output: 250000})
	require.True(t, ok)
	assert.InDelta(t, 3.0, usd, 1e-9)

	_, ok = estimateCost("gpt-5-mini", model.TokenUsage{Input: 1})
	assert.True(t, ok)

	_, ok = estimateCost("", model.TokenUsage{Input: 1})
	assert.False(t, ok)
}

func TestWriteReportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := &evaluation.Report{Dataset: "d.yaml", Documents: []evaluation.DocumentMetrics{}}
	require.NoError(t, writeReportJSON(report, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "d.yaml", out["dataset"])
}
