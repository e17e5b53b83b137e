// Package document turns the first page of a PDF into line-level text blocks
// and the layout-annotated text given to the language model.
package document

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-extract/internal/config"
	"github.com/sells-group/doc-extract/internal/model"
)

// Extractor extracts the first page of a PDF. Implementations return a
// *DocumentError when the bytes cannot be parsed or hold no text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, source string) (*model.ExtractedDocument, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.PDFConfig) (Extractor, error) {
	switch cfg.Engine {
	case "native", "":
		return NewNative(), nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("document: unknown engine %q", cfg.Engine)
	}
}
