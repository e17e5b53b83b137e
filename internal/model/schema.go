package model

// ExtractionSchema maps field names to the descriptions given to the model.
// Field order is the order the caller supplied.
type ExtractionSchema = Ordered[string]

// SchemaOf builds an ExtractionSchema from alternating name, description pairs.
// A trailing name without a description is ignored.
func SchemaOf(pairs ...string) ExtractionSchema {
	var s ExtractionSchema
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(pairs[i], pairs[i+1])
	}
	return s
}

// ExtractionRequest is a single extraction job. PDFBytes, when set, takes
// precedence over PDFPath (uploads).
type ExtractionRequest struct {
	Label    string           `json:"label"`
	Schema   ExtractionSchema `json:"extraction_schema"`
	PDFPath  string           `json:"pdf_path"`
	PDFBytes []byte           `json:"-"`
}

// BatchItem is one entry of a batch or evaluation dataset. GT holds the
// expected value per field; a nil entry means the field should be empty.
type BatchItem struct {
	Label   string           `json:"label" yaml:"label"`
	Schema  ExtractionSchema `json:"extraction_schema" yaml:"extraction_schema"`
	PDFPath string           `json:"pdf_path" yaml:"pdf_path"`
	GT      map[string]any   `json:"gt,omitempty" yaml:"gt,omitempty"`
}

// Request converts the item into an ExtractionRequest.
func (b BatchItem) Request() ExtractionRequest {
	return ExtractionRequest{
		Label:   b.Label,
		Schema:  b.Schema,
		PDFPath: b.PDFPath,
	}
}
