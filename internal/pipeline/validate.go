package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/doc-extract/internal/model"
)

// ValidationError reports a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// Validate checks that req names a label, a non-empty schema and a document.
func Validate(req model.ExtractionRequest) error {
	if strings.TrimSpace(req.Label) == "" {
		return &ValidationError{Field: "label", Message: "is required"}
	}
	if req.Schema.Len() == 0 {
		return &ValidationError{Field: "extraction_schema", Message: "must contain at least one field"}
	}
	for _, name := range req.Schema.Keys() {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: "extraction_schema", Message: "field names must not be empty"}
		}
	}
	if len(req.PDFBytes) == 0 && strings.TrimSpace(req.PDFPath) == "" {
		return &ValidationError{Field: "pdf_path", Message: "is required"}
	}
	return nil
}
