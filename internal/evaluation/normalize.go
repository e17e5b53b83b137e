// Package evaluation scores extraction results against ground truth.
package evaluation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize renders v for comparison. Strings are accent-stripped,
// lower-cased and whitespace-collapsed; numbers use their shortest decimal
// form; nil, NaN and infinities become "".
func Normalize(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case *string:
		if x == nil {
			return ""
		}
		return normalizeText(*x)
	case string:
		return normalizeText(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = Normalize(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "[" + normalizeText(k) + ", " + Normalize(x[k]) + "]"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return normalizeText(fmt.Sprint(x))
	}
}

// ValuesMatch reports whether predicted matches expected. A nil expectation
// matches a nil or empty prediction.
func ValuesMatch(expected, predicted any) bool {
	if expected == nil {
		return Normalize(predicted) == ""
	}
	return Normalize(expected) == Normalize(predicted)
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

func normalizeText(s string) string {
	stripped, _, err := transform.String(accentStripper(), s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// accentStripper decomposes and drops combining marks. Transformers are
// stateful, so each call gets a fresh chain.
func accentStripper() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
}
