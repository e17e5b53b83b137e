package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-extract/internal/model"
)

const (
	// EngineNative identifies the pure-Go extractor.
	EngineNative = "ledongthuc/pdf"

	// US Letter, used when a page declares no MediaBox.
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0

	// A horizontal gap wider than this fraction of the font size starts a new word.
	wordGapRatio = 0.2
)

// Native extracts first-page text with github.com/ledongthuc/pdf.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native {
	return &Native{}
}

// Extract parses data and returns the first page as an ExtractedDocument.
func (n *Native) Extract(ctx context.Context, data []byte, source string) (*model.ExtractedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "document: extract")
	}
	p, err := readFirstPage(data)
	if err != nil {
		return nil, withSource(err, source)
	}
	return buildDocument(p, source, EngineNative), nil
}

func withSource(err error, source string) error {
	var de *DocumentError
	if errors.As(err, &de) && de.Source == "" {
		de.Source = source
	}
	return err
}

// readFirstPage converts page 1 glyphs into word spans. The parser panics on
// malformed input, so panics are recovered into a DocumentError.
func readFirstPage(data []byte) (p page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DocumentError{Reason: ReasonUnreadable, Err: fmt.Errorf("%v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return page{}, &DocumentError{Reason: ReasonUnreadable, Err: err}
	}

	numPages := reader.NumPage()
	if numPages < 1 {
		return page{}, &DocumentError{Reason: ReasonNoPages}
	}
	first := reader.Page(1)
	if first.V.IsNull() {
		return page{}, &DocumentError{Reason: ReasonNoPages}
	}

	width, height := mediaBox(first)
	glyphs := make([]span, 0, 256)
	for _, t := range first.Content().Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 1
		}
		glyphs = append(glyphs, span{
			text:   t.S,
			x0:     t.X,
			x1:     t.X + t.W,
			top:    height - (t.Y + size),
			bottom: height - t.Y,
		})
	}

	words := wordsFromGlyphs(glyphs)
	if len(words) == 0 {
		return page{}, &DocumentError{Reason: ReasonNoText}
	}

	return page{width: width, height: height, pages: numPages, words: words}, nil
}

// mediaBox returns the page size, following inherited MediaBox entries.
func mediaBox(p pdf.Page) (float64, float64) {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.IsNull() || box.Len() != 4 {
			continue
		}
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w > 0 && h > 0 {
			return w, h
		}
	}
	return defaultPageWidth, defaultPageHeight
}

// wordsFromGlyphs merges adjacent glyphs on the same row into words.
func wordsFromGlyphs(glyphs []span) []span {
	var words []span
	for _, row := range groupRows(glyphs) {
		cur := row[0]
		for _, g := range row[1:] {
			size := g.bottom - g.top
			if g.x0-cur.x1 > wordGapRatio*size {
				words = appendWord(words, cur)
				cur = g
				continue
			}
			cur.text += g.text
			cur.x1 = max(cur.x1, g.x1)
			cur.top = min(cur.top, g.top)
			cur.bottom = max(cur.bottom, g.bottom)
		}
		words = appendWord(words, cur)
	}
	return words
}

func appendWord(words []span, w span) []span {
	w.text = strings.TrimFunc(w.text, unicode.IsSpace)
	if w.text == "" {
		return words
	}
	return append(words, w)
}
