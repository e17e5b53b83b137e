package model

// FieldSource records where a field value came from.
type FieldSource string

const (
	SourceLLM        FieldSource = "llm"
	SourceUnresolved FieldSource = "unresolved"
)

// FieldResult is the extraction outcome for one schema field.
type FieldResult struct {
	Value      *string        `json:"value"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`
	Source     FieldSource    `json:"source"`
	Details    map[string]any `json:"details"`
}

// Resolved reports whether the field carries a non-empty value.
func (f FieldResult) Resolved() bool {
	return f.Value != nil && *f.Value != ""
}

// Unresolved builds a FieldResult with no value and zero confidence.
func Unresolved(rationale string, details map[string]any) FieldResult {
	if details == nil {
		details = map[string]any{}
	}
	return FieldResult{
		Confidence: 0,
		Rationale:  rationale,
		Source:     SourceUnresolved,
		Details:    details,
	}
}

// FieldResults maps field names to results in schema order.
type FieldResults = Ordered[FieldResult]

// Timings holds per-stage wall-clock durations in seconds.
type Timings struct {
	Extract float64 `json:"extract"`
	LLM     float64 `json:"llm"`
	Total   float64 `json:"total"`
}

// Trace partitions the schema fields by outcome.
type Trace struct {
	LLMResolved []string `json:"llm_resolved"`
	Unresolved  []string `json:"unresolved"`
}

// TokenUsage tracks token consumption of the model call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.Input += other.Input
	t.Output += other.Output
}

// ExtractionMeta carries observability data for an ExtractionResult.
type ExtractionMeta struct {
	TimingsSeconds Timings      `json:"timings_seconds"`
	CacheHit       bool         `json:"cache_hit"`
	CacheKey       string       `json:"cache_key"`
	PDFHash        string       `json:"pdf_hash"`
	SchemaHash     string       `json:"schema_hash"`
	Trace          Trace        `json:"trace"`
	DocMeta        DocumentMeta `json:"doc_meta"`
	Tokens         TokenUsage   `json:"tokens"`
	Model          string       `json:"model,omitempty"`
	LLMError       string       `json:"llm_error,omitempty"`
}

// ExtractionResult is the unit returned to callers and stored in the cache.
type ExtractionResult struct {
	Label  string         `json:"label"`
	Fields FieldResults   `json:"fields"`
	Meta   ExtractionMeta `json:"meta"`
}
