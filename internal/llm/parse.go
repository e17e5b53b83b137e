package llm

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-extract/internal/model"
)

// fieldPayload is one field of the model's answer.
type fieldPayload struct {
	Value      *string        `json:"value"`
	Confidence *float64       `json:"confidence"`
	Rationale  *string        `json:"rationale"`
	Details    map[string]any `json:"details"`
}

// parseResponse decodes and validates the model's answer. Fields the model
// set to null are returned as nil entries; keys outside schema are dropped.
func parseResponse(text string, schema model.ExtractionSchema) (map[string]*fieldPayload, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("llm: no JSON object in response")
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, eris.Wrap(err, "llm: decode response")
	}
	if err := validateResponse(schema, doc); err != nil {
		return nil, err
	}

	var raw map[string]*fieldPayload
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "llm: decode fields")
	}

	out := make(map[string]*fieldPayload, schema.Len())
	for name := range schema.All() {
		if p, ok := raw[name]; ok {
			out[name] = p
		}
	}
	return out, nil
}

// cleanJSON strips a markdown code fence and any prose around the outermost
// JSON object. It returns "" when no object is present.
func cleanJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) < 2 {
			return ""
		}
		lines = lines[1:]
		if strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
