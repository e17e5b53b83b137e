package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	s := "  São  Paulo "
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"nil string pointer", (*string)(nil), ""},
		{"string pointer", &s, "sao paulo"},
		{"accents and case", "JOSÉ da Conceição", "jose da conceicao"},
		{"whitespace", "a\t\n  b", "a b"},
		{"compatibility forms", "ﬁ ①", "fi 1"},
		{"bool", true, "true"},
		{"int", 101943, "101943"},
		{"float", 2.5, "2.5"},
		{"whole float", float64(7), "7"},
		{"nan", math.NaN(), ""},
		{"inf", math.Inf(1), ""},
		{"list", []any{"A", 1.0, nil}, "[a, 1, ]"},
		{"map", map[string]any{"b": "X", "a": 1.0}, "[[a, 1], [b, x]]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestValuesMatch(t *testing.T) {
	empty := ""
	v := "Joana D'Arc"

	assert.True(t, ValuesMatch(nil, nil))
	assert.True(t, ValuesMatch(nil, ""))
	assert.True(t, ValuesMatch(nil, &empty))
	assert.True(t, ValuesMatch(nil, (*string)(nil)))
	assert.False(t, ValuesMatch(nil, "x"))

	assert.True(t, ValuesMatch("JOANA D'ARC", &v))
	assert.True(t, ValuesMatch("Conceição", "CONCEICAO"))
	assert.True(t, ValuesMatch(101943, "101943"))
	assert.False(t, ValuesMatch("101943", "101944"))
	assert.False(t, ValuesMatch("x", nil))
}
