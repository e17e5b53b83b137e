package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/doc-extract/internal/model"
)

// lineTolerance is the maximum vertical distance, in points, between the
// top of a word and the top of the first word of the line it joins.
const lineTolerance = 5.0

// span is a positioned run of text in top-left page coordinates.
type span struct {
	text   string
	x0     float64
	x1     float64
	top    float64
	bottom float64
}

// page is what an engine hands to the layout step.
type page struct {
	width  float64
	height float64
	pages  int
	words  []span
}

// groupRows clusters spans into rows. Spans are ordered top-to-bottom then
// left-to-right; a span joins the current row while its top is within
// lineTolerance of the row's first span. Each row is sorted by x0.
func groupRows(spans []span) [][]span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].top != sorted[j].top {
			return sorted[i].top < sorted[j].top
		}
		return sorted[i].x0 < sorted[j].x0
	})

	var rows [][]span
	current := []span{sorted[0]}
	rowTop := sorted[0].top
	for _, s := range sorted[1:] {
		if s.top-rowTop <= lineTolerance {
			current = append(current, s)
			continue
		}
		rows = append(rows, current)
		current = []span{s}
		rowTop = s.top
	}
	rows = append(rows, current)

	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].x0 < row[j].x0 })
	}
	return rows
}

// zoneFor names the cell of a 3x3 page grid containing the box center.
// The middle row drops its vertical prefix: LEFT, CENTER, RIGHT.
func zoneFor(b model.BBox, width, height float64) string {
	xc := (b.X0 + b.X1) / 2
	yc := (b.Top + b.Bottom) / 2

	h := "RIGHT"
	switch {
	case xc < width/3:
		h = "LEFT"
	case xc < 2*width/3:
		h = "CENTER"
	}

	switch {
	case yc < height/3:
		return "TOP-" + h
	case yc < 2*height/3:
		return h
	default:
		return "BOTTOM-" + h
	}
}

// buildDocument turns engine output into an ExtractedDocument.
func buildDocument(p page, source, engine string) *model.ExtractedDocument {
	rows := groupRows(p.words)

	blocks := make([]model.TextBlock, 0, len(rows))
	for _, row := range rows {
		texts := make([]string, 0, len(row))
		box := model.BBox{X0: row[0].x0, X1: row[0].x1, Top: row[0].top, Bottom: row[0].bottom}
		for _, w := range row {
			texts = append(texts, w.text)
			box.X0 = min(box.X0, w.x0)
			box.X1 = max(box.X1, w.x1)
			box.Top = min(box.Top, w.top)
			box.Bottom = max(box.Bottom, w.bottom)
		}
		first := model.BBox{X0: row[0].x0, X1: row[0].x1, Top: row[0].top, Bottom: row[0].bottom}
		blocks = append(blocks, model.TextBlock{
			Text: strings.Join(texts, " "),
			Type: model.BlockTypeLine,
			BBox: box,
			Zone: zoneFor(first, p.width, p.height),
		})
	}

	markdown := joinBlocks(blocks)
	return &model.ExtractedDocument{
		Blocks:     blocks,
		Markdown:   markdown,
		FullText:   stripMarkdown(markdown),
		LayoutText: formatLayout(blocks),
		Meta: model.DocumentMeta{
			Source:     source,
			Engine:     engine,
			Pages:      p.pages,
			PageWidth:  p.width,
			PageHeight: p.height,
			WordCount:  len(p.words),
			LineCount:  len(blocks),
		},
	}
}

func joinBlocks(blocks []model.TextBlock) string {
	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = b.Text
	}
	return strings.Join(lines, "\n")
}

// formatLayout renders one line per block as `[ZONE] [x:X0-X1, y:TOP] text`.
func formatLayout(blocks []model.TextBlock) string {
	var sb strings.Builder
	for i, b := range blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s] [x:%d-%d, y:%d] %s", b.Zone, int(b.BBox.X0), int(b.BBox.X1), int(b.BBox.Top), b.Text)
	}
	return sb.String()
}

var markdownStripper = strings.NewReplacer("#", "", "*", "", "_", "", "`", "", ">", "")

// stripMarkdown drops markdown markers and collapses the whitespace they leave
// behind. Line boundaries are kept.
func stripMarkdown(s string) string {
	lines := strings.Split(markdownStripper.Replace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}
