package model

import "time"

// RunStatus represents the current state of an evaluation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// EvalRun is a persisted evaluation of a dataset against the pipeline.
type EvalRun struct {
	ID        string      `json:"id"`
	Dataset   string      `json:"dataset"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds the aggregate outcome of an evaluation run.
type RunSummary struct {
	ItemsReceived    int        `json:"items_received"`
	DocsEvaluated    int        `json:"docs_evaluated"`
	DocsFailed       int        `json:"docs_failed"`
	FieldsTotal      int        `json:"fields_total"`
	FieldsCorrect    int        `json:"fields_correct"`
	AccuracyOverall  float64    `json:"accuracy_overall"`
	AccuracyMeanDocs float64    `json:"accuracy_mean_docs"`
	TimeAvgMS        float64    `json:"time_avg_ms"`
	CacheHits        int        `json:"cache_hits"`
	Tokens           TokenUsage `json:"tokens"`
}
