package evaluation

import (
	"sort"
	"time"

	"github.com/sells-group/doc-extract/internal/model"
)

// FieldMismatch records a field whose prediction differs from ground truth.
type FieldMismatch struct {
	Field     string `json:"field"`
	Expected  any    `json:"expected"`
	Predicted any    `json:"predicted"`
}

// DocumentMetrics is the evaluation of one dataset item.
type DocumentMetrics struct {
	Index      int            `json:"index"`
	Label      string         `json:"label"`
	PDFPath    string         `json:"pdf_path"`
	Prediction map[string]any `json:"prediction"`
	GT         map[string]any `json:"gt"`
	HasGT      bool           `json:"has_gt"`
	// Evaluated is false when the run failed or there was no ground truth.
	Evaluated     bool             `json:"evaluated"`
	Accuracy      *float64         `json:"accuracy"`
	FieldsTotal   int              `json:"fields_total"`
	FieldsCorrect int              `json:"fields_correct"`
	CorrectFields []string         `json:"correct_fields"`
	WrongFields   []FieldMismatch  `json:"wrong_fields"`
	MissingFields []string         `json:"missing_fields"`
	ExtraFields   []string         `json:"extra_fields"`
	TimeMS        *float64         `json:"time_ms"`
	CacheHit      bool             `json:"cache_hit"`
	Tokens        model.TokenUsage `json:"tokens"`
	Error         string           `json:"error,omitempty"`
}

// EvaluateDocument compares result against gt. A non-nil runErr marks the
// document failed; result may then be nil.
func EvaluateDocument(item model.BatchItem, result *model.ExtractionResult, elapsed time.Duration, runErr error) DocumentMetrics {
	m := DocumentMetrics{
		Label:         item.Label,
		PDFPath:       item.PDFPath,
		Prediction:    map[string]any{},
		GT:            item.GT,
		HasGT:         item.GT != nil,
		FieldsTotal:   len(item.GT),
		CorrectFields: []string{},
		WrongFields:   []FieldMismatch{},
		MissingFields: []string{},
		ExtraFields:   []string{},
		TimeMS:        millis(elapsed),
	}

	if runErr != nil {
		m.Error = runErr.Error()
		return m
	}
	if result != nil {
		m.Prediction = Prediction(result)
		m.CacheHit = result.Meta.CacheHit
		m.Tokens = result.Meta.Tokens
	}

	if !m.HasGT || m.FieldsTotal == 0 {
		m.ExtraFields = extraFields(m.Prediction, nil)
		return m
	}

	for _, name := range sortedKeys(item.GT) {
		expected := item.GT[name]
		predicted, ok := m.Prediction[name]
		switch {
		case !ok:
			m.MissingFields = append(m.MissingFields, name)
		case ValuesMatch(expected, predicted):
			m.CorrectFields = append(m.CorrectFields, name)
		default:
			m.WrongFields = append(m.WrongFields, FieldMismatch{Field: name, Expected: expected, Predicted: predicted})
		}
	}

	m.Evaluated = true
	m.FieldsCorrect = len(m.CorrectFields)
	acc := float64(m.FieldsCorrect) / float64(m.FieldsTotal)
	m.Accuracy = &acc
	m.ExtraFields = extraFields(m.Prediction, item.GT)
	return m
}

// Prediction flattens result fields to name → value (nil when unresolved).
func Prediction(result *model.ExtractionResult) map[string]any {
	out := make(map[string]any, result.Fields.Len())
	for name, f := range result.Fields.All() {
		if f.Value == nil {
			out[name] = nil
			continue
		}
		out[name] = *f.Value
	}
	return out
}

// Metrics are dataset-level accuracy and timing figures. Pointer fields are
// nil when nothing was measured.
type Metrics struct {
	FieldsTotal      int      `json:"fields_total"`
	FieldsCorrect    int      `json:"fields_correct"`
	AccuracyOverall  *float64 `json:"accuracy_overall"`
	AccuracyMeanDocs *float64 `json:"accuracy_mean_docs"`
	TimeAvgMS        *float64 `json:"time_avg_ms"`
}

// Counters describe which documents were evaluated or skipped.
type Counters struct {
	ItemsReceived int `json:"items_received"`
	DocsEvaluated int `json:"docs_evaluated"`
	DocsWithGT    int `json:"docs_with_gt"`
	DocsWithoutGT int `json:"docs_without_gt"`
	DocsFailed    int `json:"docs_failed"`
}

// Summary aggregates a set of DocumentMetrics.
type Summary struct {
	Metrics   Metrics          `json:"metrics"`
	Counters  Counters         `json:"counters"`
	CacheHits int              `json:"cache_hits"`
	Tokens    model.TokenUsage `json:"tokens"`
}

// Aggregate computes dataset metrics. Accuracy covers evaluated documents
// only; average time covers every document that did not fail.
func Aggregate(docs []DocumentMetrics) Summary {
	var (
		s       Summary
		accSum  float64
		accN    int
		timeSum float64
		timeN   int
	)
	s.Counters.ItemsReceived = len(docs)

	for _, d := range docs {
		if d.HasGT {
			s.Counters.DocsWithGT++
		} else {
			s.Counters.DocsWithoutGT++
		}
		if d.Error != "" {
			s.Counters.DocsFailed++
		} else if d.TimeMS != nil {
			timeSum += *d.TimeMS
			timeN++
		}
		if d.CacheHit {
			s.CacheHits++
		}
		s.Tokens.Add(d.Tokens)

		if !d.Evaluated {
			continue
		}
		s.Counters.DocsEvaluated++
		s.Metrics.FieldsTotal += d.FieldsTotal
		s.Metrics.FieldsCorrect += d.FieldsCorrect
		if d.Accuracy != nil {
			accSum += *d.Accuracy
			accN++
		}
	}

	if s.Metrics.FieldsTotal > 0 {
		s.Metrics.AccuracyOverall = ratio(float64(s.Metrics.FieldsCorrect), s.Metrics.FieldsTotal)
	}
	if accN > 0 {
		s.Metrics.AccuracyMeanDocs = ratio(accSum, accN)
	}
	if timeN > 0 {
		s.Metrics.TimeAvgMS = ratio(timeSum, timeN)
	}
	return s
}

// RunSummary converts s into the persisted form; unmeasured figures become 0.
func (s Summary) RunSummary() *model.RunSummary {
	return &model.RunSummary{
		ItemsReceived:    s.Counters.ItemsReceived,
		DocsEvaluated:    s.Counters.DocsEvaluated,
		DocsFailed:       s.Counters.DocsFailed,
		FieldsTotal:      s.Metrics.FieldsTotal,
		FieldsCorrect:    s.Metrics.FieldsCorrect,
		AccuracyOverall:  deref(s.Metrics.AccuracyOverall),
		AccuracyMeanDocs: deref(s.Metrics.AccuracyMeanDocs),
		TimeAvgMS:        deref(s.Metrics.TimeAvgMS),
		CacheHits:        s.CacheHits,
		Tokens:           s.Tokens,
	}
}

func ratio(num float64, den int) *float64 {
	v := num / float64(den)
	return &v
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func millis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}

func extraFields(prediction, gt map[string]any) []string {
	extra := []string{}
	for _, name := range sortedKeys(prediction) {
		if _, ok := gt[name]; !ok {
			extra = append(extra, name)
		}
	}
	return extra
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
