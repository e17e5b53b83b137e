package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/evaluation"
	"github.com/sells-group/doc-extract/internal/model"
	"github.com/sells-group/doc-extract/internal/pipeline"
	"github.com/sells-group/doc-extract/internal/store"
)

var (
	evalDataset     string
	evalOut         string
	evalJSON        string
	evalNoCache     bool
	evalNoStore     bool
	evalConcurrency int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate extraction accuracy against a labeled dataset",
	Long:  "Runs every dataset item through the pipeline, compares predictions with ground truth and prints dataset metrics. Optionally writes an XLSX or JSON report and records the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		items, err := evaluation.LoadDataset(evalDataset)
		if err != nil {
			return err
		}

		env, err := initExtractEnv("eval")
		if err != nil {
			return err
		}
		defer env.Close()

		var st store.Store
		if !evalNoStore {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		concurrency := evalConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}

		report, runID, err := runEvaluation(ctx, env.Pipeline, st, evalDataset, items, concurrency, !evalNoCache)
		if err != nil {
			return err
		}

		if evalOut != "" {
			if err := evaluation.WriteXLSX(report, evalOut); err != nil {
				return err
			}
			zap.L().Info("xlsx report written", zap.String("path", evalOut))
		}
		if evalJSON != "" {
			if err := writeReportJSON(report, evalJSON); err != nil {
				return err
			}
			zap.L().Info("json report written", zap.String("path", evalJSON))
		}

		if runID != "" {
			fmt.Fprintf(os.Stdout, "Run: %s\n", runID)
		}
		formatSummary(os.Stdout, report.Summary)
		if usd, ok := estimateCost(env.LLM.Model(), report.Summary.Tokens); ok {
			fmt.Fprintf(os.Stdout, "Est. cost: $%.4f (%s)\n", usd, env.LLM.Model())
		}
		return nil
	},
}

// runEvaluation evaluates items and, when st is non-nil, records the run.
// Store failures are logged and do not fail the evaluation.
func runEvaluation(ctx context.Context, p pipeline.Runner, st store.Store, dataset string, items []model.BatchItem, concurrency int, useCache bool) (*evaluation.Report, string, error) {
	var run *model.EvalRun
	if st != nil {
		var err error
		if run, err = st.CreateRun(ctx, dataset); err != nil {
			zap.L().Warn("create eval run", zap.Error(err))
		}
	}

	runner := evaluation.NewRunner(p, concurrency)
	report, err := runner.Run(ctx, items, evaluation.Options{UseCache: useCache}, func(d evaluation.DocumentMetrics) {
		fields := []zap.Field{
			zap.Int("index", d.Index),
			zap.String("pdf_path", d.PDFPath),
			zap.Bool("cache_hit", d.CacheHit),
		}
		if d.Accuracy != nil {
			fields = append(fields, zap.Float64("accuracy", *d.Accuracy))
		}
		if d.Error != "" {
			zap.L().Warn("document failed", append(fields, zap.String("error", d.Error))...)
			return
		}
		zap.L().Info("document evaluated", fields...)
	})
	if run == nil {
		if err != nil {
			return nil, "", err
		}
		report.Dataset = dataset
		return report, "", nil
	}

	if err != nil {
		if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
			zap.L().Warn("record failed eval run", zap.String("run_id", run.ID), zap.Error(ferr))
		}
		return nil, "", err
	}
	report.Dataset = dataset
	if cerr := st.CompleteRun(ctx, run.ID, report.Summary.RunSummary()); cerr != nil {
		zap.L().Warn("record eval run", zap.String("run_id", run.ID), zap.Error(cerr))
	}
	return report, run.ID, nil
}

func writeReportJSON(report *evaluation.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create json report")
	}
	defer f.Close() //nolint:errcheck

	enc := newIndentEncoder(f)
	if err := enc.Encode(report); err != nil {
		return eris.Wrap(err, "write json report")
	}
	return nil
}

// formatSummary writes dataset metrics to w.
func formatSummary(out io.Writer, s evaluation.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Items received:\t%d\n", s.Counters.ItemsReceived)
	_, _ = fmt.Fprintf(w, "Evaluated:\t%d\n", s.Counters.DocsEvaluated)
	_, _ = fmt.Fprintf(w, "  With ground truth:\t%d\n", s.Counters.DocsWithGT)
	_, _ = fmt.Fprintf(w, "  Without ground truth:\t%d\n", s.Counters.DocsWithoutGT)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Counters.DocsFailed)
	_, _ = fmt.Fprintf(w, "Fields correct:\t%d/%d\n", s.Metrics.FieldsCorrect, s.Metrics.FieldsTotal)
	_, _ = fmt.Fprintf(w, "Accuracy (overall):\t%s\n", percent(s.Metrics.AccuracyOverall))
	_, _ = fmt.Fprintf(w, "Accuracy (mean per doc):\t%s\n", percent(s.Metrics.AccuracyMeanDocs))
	if s.Metrics.TimeAvgMS != nil {
		_, _ = fmt.Fprintf(w, "Avg time:\t%.0fms\n", *s.Metrics.TimeAvgMS)
	}
	_, _ = fmt.Fprintf(w, "Cache hits:\t%d\n", s.CacheHits)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d in / %d out\n", s.Tokens.Input, s.Tokens.Output)
	_ = w.Flush()
}

func estimateCost(modelName string, usage model.TokenUsage) (float64, bool) {
	return newCostCalculator().Tokens(modelName, usage)
}

func percent(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *f*100)
}

func init() {
	evalCmd.Flags().StringVar(&evalDataset, "dataset", "", "dataset file (.json, .yaml or .yml)")
	evalCmd.Flags().StringVar(&evalOut, "out", "", "write an XLSX report to this path")
	evalCmd.Flags().StringVar(&evalJSON, "json", "", "write a JSON report to this path")
	evalCmd.Flags().BoolVar(&evalNoCache, "no-cache", false, "bypass the result cache")
	evalCmd.Flags().BoolVar(&evalNoStore, "no-store", false, "do not record the run")
	evalCmd.Flags().IntVar(&evalConcurrency, "concurrency", 0, "documents in flight (default batch.max_concurrent)")
	_ = evalCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(evalCmd)
}
