package document

import (
	"bytes"
	"context"
	"encoding/xml"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-extract/internal/model"
)

// EnginePdfToText identifies the poppler pdftotext extractor.
const EnginePdfToText = "pdftotext"

// PdfToText extracts first-page words using `pdftotext -bbox-layout`.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// Extract writes data to a temp file, runs pdftotext on it and parses the
// bounding-box output of the first page.
func (p *PdfToText) Extract(ctx context.Context, data []byte, source string) (*model.ExtractedDocument, error) {
	tmp, err := os.CreateTemp("", "doc-extract-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "document: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "document: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "document: close temp file")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-bbox-layout", tmp.Name(), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "document: pdftotext")
		}
		return nil, &DocumentError{
			Source: source,
			Reason: ReasonUnreadable,
			Err:    eris.Wrapf(err, "pdftotext: %s", stderr.String()),
		}
	}

	pg, err := parseBBoxLayout(stdout.Bytes())
	if err != nil {
		return nil, withSource(err, source)
	}
	return buildDocument(pg, source, EnginePdfToText), nil
}

type bboxDoc struct {
	Pages []bboxPage `xml:"body>doc>page"`
}

type bboxPage struct {
	Width  float64    `xml:"width,attr"`
	Height float64    `xml:"height,attr"`
	Words  []bboxWord `xml:"flow>block>line>word"`
}

type bboxWord struct {
	XMin float64 `xml:"xMin,attr"`
	YMin float64 `xml:"yMin,attr"`
	XMax float64 `xml:"xMax,attr"`
	YMax float64 `xml:"yMax,attr"`
	Text string  `xml:",chardata"`
}

// parseBBoxLayout reads pdftotext's XHTML bounding-box output. Coordinates
// there already use a top-left origin.
func parseBBoxLayout(data []byte) (page, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var doc bboxDoc
	if err := dec.Decode(&doc); err != nil {
		return page{}, &DocumentError{Reason: ReasonUnreadable, Err: eris.Wrap(err, "parse bbox layout")}
	}
	if len(doc.Pages) == 0 {
		return page{}, &DocumentError{Reason: ReasonNoPages}
	}

	first := doc.Pages[0]
	pg := page{width: first.Width, height: first.Height, pages: len(doc.Pages)}
	if pg.width <= 0 || pg.height <= 0 {
		pg.width, pg.height = defaultPageWidth, defaultPageHeight
	}
	for _, w := range first.Words {
		pg.words = appendWord(pg.words, span{
			text:   w.Text,
			x0:     w.XMin,
			x1:     w.XMax,
			top:    w.YMin,
			bottom: w.YMax,
		})
	}
	if len(pg.words) == 0 {
		return page{}, &DocumentError{Reason: ReasonNoText}
	}
	return pg, nil
}
