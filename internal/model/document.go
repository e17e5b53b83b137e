package model

// BlockType identifies the granularity of a TextBlock.
type BlockType string

const (
	BlockTypeLine BlockType = "line"
)

// BBox is a bounding box in PDF points with a top-left origin.
type BBox struct {
	X0     float64 `json:"x0"`
	X1     float64 `json:"x1"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// TextBlock is one physical line of text on the first page.
type TextBlock struct {
	Text string    `json:"text"`
	Type BlockType `json:"type"`
	BBox BBox      `json:"bbox"`
	Zone string    `json:"zone"`
}

// DocumentMeta describes the source document.
type DocumentMeta struct {
	Source     string  `json:"source"`
	Engine     string  `json:"engine"`
	Pages      int     `json:"pages"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
	WordCount  int     `json:"word_count"`
	LineCount  int     `json:"line_count"`
}

// ExtractedDocument is the text extracted from the first page of a PDF.
// LayoutText is the representation sent to the language model.
type ExtractedDocument struct {
	Blocks     []TextBlock  `json:"blocks"`
	Markdown   string       `json:"markdown"`
	FullText   string       `json:"full_text"`
	LayoutText string       `json:"layout_text"`
	Meta       DocumentMeta `json:"meta"`
}
