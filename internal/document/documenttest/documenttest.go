// Package documenttest builds small PDF files for tests.
package documenttest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Line is text drawn with its baseline at (X, Y) in PDF points, origin bottom-left.
type Line struct {
	X    float64
	Y    float64
	Size float64
	Text string
}

// Page is the list of lines drawn on one page.
type Page []Line

// PDF returns a valid PDF with one US Letter page per argument. Text uses
// Helvetica with WinAnsi encoding and a fixed 600/1000 em glyph width, so a
// character at size 10 advances 6pt.
func PDF(pages ...Page) []byte {
	var objs []string
	// 1: catalog, 2: pages, 3: font, then page/content pairs.
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))

	widths := make([]string, 95)
	for i := range widths {
		widths[i] = "600"
	}
	objs = append(objs, fmt.Sprintf(
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		strings.Join(widths, " "),
	))

	for i, pg := range pages {
		objs = append(objs, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			5+2*i,
		))
		content := contentStream(pg)
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// EmptyPDF returns a one-page PDF without any text.
func EmptyPDF() []byte {
	return PDF(Page{})
}

// Card returns a one-page PDF resembling an ID card with a name and a number.
func Card() []byte {
	return PDF(Page{
		{X: 40, Y: 740, Size: 12, Text: "ORDEM DOS ADVOGADOS"},
		{X: 40, Y: 700, Size: 10, Text: "NOME"},
		{X: 40, Y: 685, Size: 10, Text: "JOANA D'ARC"},
		{X: 400, Y: 660, Size: 10, Text: "INSCRICAO 101943"},
		{X: 40, Y: 100, Size: 8, Text: "SECCIONAL PR"},
	})
}

// Write stores data under dir/name and returns the full path.
func Write(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func contentStream(pg Page) string {
	if len(pg) == 0 {
		return "q Q"
	}
	var sb strings.Builder
	for _, l := range pg {
		size := l.Size
		if size <= 0 {
			size = 10
		}
		fmt.Fprintf(&sb, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, l.X, l.Y, escape(l.Text))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(s)
}
