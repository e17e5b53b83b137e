package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-extract/internal/model"
)

type runnerFunc func(ctx context.Context, req model.ExtractionRequest, opts RunOptions) (*model.ExtractionResult, error)

func (f runnerFunc) Run(ctx context.Context, req model.ExtractionRequest, opts RunOptions) (*model.ExtractionResult, error) {
	return f(ctx, req, opts)
}

func batchRequests(labels ...string) []model.ExtractionRequest {
	reqs := make([]model.ExtractionRequest, len(labels))
	for i, l := range labels {
		reqs[i] = model.ExtractionRequest{Label: l, Schema: model.SchemaOf("f", "d"), PDFPath: l + ".pdf"}
	}
	return reqs
}

func TestRunBatch_MixedOutcomes(t *testing.T) {
	r := runnerFunc(func(_ context.Context, req model.ExtractionRequest, opts RunOptions) (*model.ExtractionResult, error) {
		assert.True(t, opts.UseCache)
		if req.Label == "bad" {
			return nil, errors.New("Empty PDF: no text content")
		}
		var fields model.FieldResults
		fields.Set("f", model.FieldResult{Value: strPtr("v"), Confidence: 1, Source: model.SourceLLM, Details: map[string]any{}})
		return &model.ExtractionResult{Label: req.Label, Fields: fields}, nil
	})

	var items []BatchItemResult
	summary := RunBatch(context.Background(), r, batchRequests("a", "bad", "c"),
		BatchOptions{UseCache: true, Concurrency: 2},
		func(item BatchItemResult) { items = append(items, item) })

	assert.Equal(t, BatchSummary{Status: StatusDone, Total: 3, Successful: 2, Failed: 1}, summary)
	require.Len(t, items, 3)

	byIndex := map[int]BatchItemResult{}
	for _, it := range items {
		byIndex[it.Index] = it
	}
	assert.Equal(t, StatusError, byIndex[1].Status)
	assert.Equal(t, "bad", byIndex[1].Label)
	assert.Contains(t, byIndex[1].Error, "no text content")
	assert.Nil(t, byIndex[1].Fields)

	assert.Equal(t, StatusCompleted, byIndex[0].Status)
	require.NotNil(t, byIndex[0].Fields)
	assert.Equal(t, []string{"f"}, byIndex[0].Fields.Keys())
	assert.NotNil(t, byIndex[0].Result)
}

func TestRunBatch_RespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := runnerFunc(func(_ context.Context, req model.ExtractionRequest, _ RunOptions) (*model.ExtractionResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &model.ExtractionResult{Label: req.Label}, nil
	})

	summary := RunBatch(context.Background(), r, batchRequests("a", "b", "c", "d", "e", "f"),
		BatchOptions{Concurrency: 2}, nil)

	assert.Equal(t, 6, summary.Successful)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	r := runnerFunc(func(context.Context, model.ExtractionRequest, RunOptions) (*model.ExtractionResult, error) {
		calls.Add(1)
		return &model.ExtractionResult{}, nil
	})

	summary := RunBatch(ctx, r, batchRequests("a", "b"), BatchOptions{Concurrency: 1}, nil)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBatchItemResult_JSON(t *testing.T) {
	item := BatchItemResult{Index: 2, Status: StatusError, Label: "x", Error: "boom", Err: errors.New("boom")}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":2,"status":"error","label":"x","error":"boom"}`, string(data))
}
