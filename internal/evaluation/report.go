package evaluation

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var documentsHeader = []string{
	"index", "label", "pdf_path", "evaluated", "accuracy", "fields_total", "fields_correct",
	"correct_fields", "wrong_fields", "missing_fields", "extra_fields", "time_ms", "cache_hit", "error",
}

// WriteXLSX writes report to path with a Summary and a Documents sheet.
func WriteXLSX(report *Report, path string) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "evaluation: add summary sheet")
	}
	s := report.Summary
	addRow(summary, "metric", "value")
	addIntRow(summary, "items_received", s.Counters.ItemsReceived)
	addIntRow(summary, "docs_evaluated", s.Counters.DocsEvaluated)
	addIntRow(summary, "docs_with_gt", s.Counters.DocsWithGT)
	addIntRow(summary, "docs_without_gt", s.Counters.DocsWithoutGT)
	addIntRow(summary, "docs_failed", s.Counters.DocsFailed)
	addIntRow(summary, "fields_total", s.Metrics.FieldsTotal)
	addIntRow(summary, "fields_correct", s.Metrics.FieldsCorrect)
	addFloatRow(summary, "accuracy_overall", s.Metrics.AccuracyOverall)
	addFloatRow(summary, "accuracy_mean_docs", s.Metrics.AccuracyMeanDocs)
	addFloatRow(summary, "time_avg_ms", s.Metrics.TimeAvgMS)
	addIntRow(summary, "cache_hits", s.CacheHits)
	addIntRow(summary, "tokens_input", s.Tokens.Input)
	addIntRow(summary, "tokens_output", s.Tokens.Output)

	docs, err := f.AddSheet("Documents")
	if err != nil {
		return eris.Wrap(err, "evaluation: add documents sheet")
	}
	addRow(docs, documentsHeader...)
	for _, d := range report.Documents {
		row := docs.AddRow()
		row.AddCell().SetInt(d.Index)
		row.AddCell().SetString(d.Label)
		row.AddCell().SetString(d.PDFPath)
		row.AddCell().SetBool(d.Evaluated)
		floatCell(row, d.Accuracy)
		row.AddCell().SetInt(d.FieldsTotal)
		row.AddCell().SetInt(d.FieldsCorrect)
		row.AddCell().SetString(strings.Join(d.CorrectFields, ", "))
		row.AddCell().SetString(mismatchNames(d.WrongFields))
		row.AddCell().SetString(strings.Join(d.MissingFields, ", "))
		row.AddCell().SetString(strings.Join(d.ExtraFields, ", "))
		floatCell(row, d.TimeMS)
		row.AddCell().SetBool(d.CacheHit)
		row.AddCell().SetString(d.Error)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "evaluation: save xlsx report")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addIntRow(sheet *xlsx.Sheet, name string, v int) {
	row := sheet.AddRow()
	row.AddCell().SetString(name)
	row.AddCell().SetInt(v)
}

func addFloatRow(sheet *xlsx.Sheet, name string, v *float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(name)
	floatCell(row, v)
}

// floatCell leaves the cell empty for unmeasured values.
func floatCell(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

func mismatchNames(m []FieldMismatch) string {
	names := make([]string, len(m))
	for i, w := range m {
		names[i] = w.Field
	}
	return strings.Join(names, ", ")
}
