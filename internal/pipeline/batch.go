package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/doc-extract/internal/model"
)

// Batch item statuses.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusDone      = "done"
)

// Runner runs a single extraction. *Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req model.ExtractionRequest, opts RunOptions) (*model.ExtractionResult, error)
}

// BatchOptions controls RunBatch.
type BatchOptions struct {
	UseCache    bool
	Concurrency int
}

// BatchItemResult is the outcome of one batch item.
type BatchItemResult struct {
	Index  int                   `json:"index"`
	Status string                `json:"status"`
	Label  string                `json:"label"`
	Fields *model.FieldResults   `json:"fields,omitempty"`
	Meta   *model.ExtractionMeta `json:"meta,omitempty"`
	Error  string                `json:"error,omitempty"`

	// Result and Elapsed are kept for in-process callers.
	Result  *model.ExtractionResult `json:"-"`
	Err     error                   `json:"-"`
	Elapsed time.Duration           `json:"-"`
}

// BatchSummary closes a batch.
type BatchSummary struct {
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

// RunBatch runs reqs through r with at most opts.Concurrency in flight.
// onItem is called once per item in completion order and never concurrently.
// A failing item is reported through onItem and does not stop the batch.
func RunBatch(ctx context.Context, r Runner, reqs []model.ExtractionRequest, opts BatchOptions, onItem func(BatchItemResult)) BatchSummary {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("pipeline: processing batch",
		zap.Int("items", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	var (
		mu      sync.Mutex
		summary = BatchSummary{Status: StatusDone, Total: len(reqs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			item := runItem(gctx, r, i, req, RunOptions{UseCache: opts.UseCache})

			mu.Lock()
			defer mu.Unlock()
			if item.Status == StatusCompleted {
				summary.Successful++
			} else {
				summary.Failed++
			}
			if onItem != nil {
				onItem(item)
			}
			return nil // don't abort batch on individual failure
		})
	}
	_ = g.Wait()

	zap.L().Info("pipeline: batch complete",
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func runItem(ctx context.Context, r Runner, index int, req model.ExtractionRequest, opts RunOptions) BatchItemResult {
	item := BatchItemResult{Index: index, Label: req.Label}

	if err := ctx.Err(); err != nil {
		item.Status, item.Err, item.Error = StatusError, err, err.Error()
		return item
	}

	start := time.Now()
	result, err := r.Run(ctx, req, opts)
	item.Elapsed = time.Since(start)
	if err != nil {
		zap.L().Error("pipeline: batch item failed",
			zap.Int("index", index),
			zap.String("label", req.Label),
			zap.Error(err),
		)
		item.Status, item.Err, item.Error = StatusError, err, err.Error()
		return item
	}

	item.Status = StatusCompleted
	item.Result = result
	item.Fields = &result.Fields
	item.Meta = &result.Meta
	return item
}
