package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sells-group/doc-extract/internal/model"
)

// HashPDFBytes returns the hex SHA-256 of the raw document bytes.
func HashPDFBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashExtractionSchema returns the hex SHA-256 of the schema's canonical
// form: a JSON object with sorted keys and no HTML escaping. Two schemas
// with the same entries hash identically regardless of field order.
func HashExtractionSchema(schema model.ExtractionSchema) string {
	canonical := make(map[string]string, schema.Len())
	for name, desc := range schema.All() {
		canonical[name] = desc
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(canonical) // map[string]string cannot fail to encode

	sum := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(sum[:])
}
