package llm

import (
	"fmt"
	"strings"

	"github.com/sells-group/doc-extract/internal/model"
)

const systemPromptTemplate = `You extract structured data accurately from '%s' documents.

Rules:
1. Extract only information that is explicitly present in the document.
2. Use null for any field that is missing or unclear. Never guess.
3. Copy values exactly as written, without reformatting.
4. Answer with JSON only, no commentary.

The document is given as layout text, one physical line per row:
  [ZONE] [x:X0-X1, y:TOP] text
ZONE is the line's cell in a 3x3 grid of the page (TOP-LEFT, TOP-CENTER, TOP-RIGHT,
LEFT, CENTER, RIGHT, BOTTOM-LEFT, BOTTOM-CENTER, BOTTOM-RIGHT). x and y are page
coordinates in points, y growing downwards. A value usually sits on the same line
as its label or directly below it; prefer candidates whose position fits the field
description.`

const userPromptTemplate = `## Fields to extract
%s

## Document layout
%s

## Output
Return one JSON object with exactly one key per field above. Each value is an object:
{"value": string or null, "confidence": number between 0 and 1, "rationale": short explanation, "details": {"evidence": the source line or null}}`

// SystemPrompt returns the system instruction for documents of label.
func SystemPrompt(label string) string {
	return fmt.Sprintf(systemPromptTemplate, label)
}

// UserPrompt lists the schema fields followed by the full layout text.
func UserPrompt(schema model.ExtractionSchema, layout string) string {
	var fields strings.Builder
	for name, desc := range schema.All() {
		fmt.Fprintf(&fields, "- %s: %s\n", name, desc)
	}
	return fmt.Sprintf(userPromptTemplate, strings.TrimRight(fields.String(), "\n"), layout)
}

func schemaInstruction(schemaJSON string) string {
	return "\n\nThe JSON object must validate against this JSON Schema:\n" + schemaJSON
}
